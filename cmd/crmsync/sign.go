package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/himplant/crmsync/internal/signature"
)

// SignOptions holds flags for the sign command.
type SignOptions struct {
	*RootOptions
	Key string
	URL string
}

// NewSignCommand creates the sign command.
func NewSignCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SignOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sign <payload-file|->",
		Short: "Compute webhook signature headers for a payload",
		Long: `Compute the signature headers Square would send for a payload.

Key and URL default to square.webhook_key and square.notification_url.

Examples:
  crmsync sign event.json
  cat event.json | crmsync sign - --key secret --url https://sync.example.com/square/webhook`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, url := opts.Key, opts.URL
			if key == "" || url == "" {
				cfg, _, err := loadConfig()
				if err != nil {
					return err
				}
				if key == "" {
					key = cfg.Square.WebhookKey
				}
				if url == "" {
					url = cfg.Square.NotificationURL
				}
			}
			if key == "" {
				return errors.New("no signature key: pass --key or set square.webhook_key")
			}
			if url == "" {
				return errors.New("no notification url: pass --url or set square.notification_url")
			}

			body, err := readPayload(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			sigs := signature.Sign(body, key, url)

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return json.NewEncoder(out).Encode(map[string]string{
					signature.HeaderSHA256: sigs.SHA256,
					signature.HeaderSHA1:   sigs.SHA1,
				})
			}
			fmt.Fprintf(out, "%s: %s\n", signature.HeaderSHA256, sigs.SHA256)
			fmt.Fprintf(out, "%s: %s\n", signature.HeaderSHA1, sigs.SHA1)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Key, "key", "", "webhook signature key")
	cmd.Flags().StringVar(&opts.URL, "url", "", "notification URL registered with Square")
	return cmd
}

func readPayload(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return body, nil
}
