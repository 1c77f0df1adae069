package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"inference-gateway/domain"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func buildKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage workspace API keys",
	}
	cmd.AddCommand(buildKeysCreateCmd(), buildKeysRevokeCmd())
	return cmd
}

func buildKeysCreateCmd() *cobra.Command {
	var workspaceId, label string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint a new API key for a workspace and print it once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workspaceId == "" {
				return fmt.Errorf("--workspace-id is required")
			}

			storage, err := openStorage()
			if err != nil {
				return err
			}

			raw := make([]byte, 32)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			token := base64.RawURLEncoding.EncodeToString(raw)
			prefix := token[:domain.APIKeyPrefixLength]
			secret := token[domain.APIKeyPrefixLength:]

			hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
			if err != nil {
				return err
			}

			key := domain.APIKey{
				Id:           "key_" + ksuid.New().String(),
				WorkspaceId:  workspaceId,
				Prefix:       prefix,
				HashedSecret: string(hashed),
				Label:        label,
				IsActive:     true,
				CreatedAt:    time.Now().UTC(),
			}
			if err := storage.PersistAPIKey(cmd.Context(), key); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "id:    %s\ntoken: %s\n", key.Id, token)
			fmt.Fprintln(cmd.OutOrStdout(), "store this token now; it cannot be recovered")
			return nil
		},
	}

	cmd.Flags().StringVar(&workspaceId, "workspace-id", "", "workspace the key belongs to (required)")
	cmd.Flags().StringVar(&label, "label", "", "human-readable label for the key")
	return cmd
}

func buildKeysRevokeCmd() *cobra.Command {
	var workspaceId string

	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workspaceId == "" {
				return fmt.Errorf("--workspace-id is required")
			}
			storage, err := openStorage()
			if err != nil {
				return err
			}
			if err := storage.RevokeAPIKey(cmd.Context(), workspaceId, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "revoked")
			return nil
		},
	}
	cmd.Flags().StringVar(&workspaceId, "workspace-id", "", "workspace the key belongs to (required)")
	return cmd
}
