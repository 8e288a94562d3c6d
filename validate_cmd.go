package main

import (
	"context"
	"fmt"
	"time"

	itts "github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:     "validate",
	Short:   "Check that the configured provider is reachable",
	Long:    paragraph(fmt.Sprintf("\n%s the configuration and make one authenticated request to the provider.", keyword("Validate"))),
	Example: paragraph("aloud validate\naloud validate --provider google"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		provider, err := newProvider()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := provider.ValidateConnection(ctx, cfg.Provider); err != nil {
			if perr := itts.AsProviderError(err); perr != nil {
				return fmt.Errorf("%s provider rejected the connection (%s): %w", provider.Name(), perr.Kind(), err)
			}
			return fmt.Errorf("%s provider rejected the connection: %w", provider.Name(), err)
		}

		opts := provider.ConvertToOptions(cfg.Provider)
		fmt.Printf("%s is reachable, voice %s, format %s\n",
			providerStyle.Render(string(provider.Name())), opts.Voice, cfg.AudioFormat())
		return nil
	},
}
