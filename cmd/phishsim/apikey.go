package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Generate an admin API key",
	Long:  `Generate a random admin API key and the bcrypt hash to put in auth.admin_key_hash.`,
	RunE:  runAPIKey,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
}

func runAPIKey(cmd *cobra.Command, args []string) error {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	key := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash key: %w", err)
	}

	fmt.Printf("API key (give to the operator, it is not stored):\n  %s\n\n", key)
	fmt.Printf("Config entry:\n")
	fmt.Printf("auth:\n  admin_key_hash: \"%s\"\n", hash)

	return nil
}
