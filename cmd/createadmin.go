/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guidopia/apiserver/config"
	"github.com/guidopia/apiserver/internal/auth"
	"github.com/guidopia/apiserver/internal/db"
	"github.com/guidopia/apiserver/internal/store"
	"github.com/guidopia/apiserver/types"
)

var (
	adminName     string
	adminEmail    string
	adminPhone    string
	adminPassword string
)

// createAdminCmd seeds an admin account directly in the database.
// Signup over HTTP always creates students, so this is the only way to
// get the first admin.
var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminName == "" || adminEmail == "" || adminPassword == "" {
			return fmt.Errorf("--name, --email and --password are required")
		}
		if len(adminPassword) < 8 {
			return fmt.Errorf("password must be at least 8 characters")
		}

		cfg := config.LoadConfig()
		database, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()

		hash, err := auth.HashPassword(adminPassword)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		users := store.NewUserRepository(database)
		user, err := users.Create(cmd.Context(), types.User{
			FullName:        adminName,
			Email:           strings.ToLower(strings.TrimSpace(adminEmail)),
			Phone:           strings.TrimSpace(adminPhone),
			Role:            types.RoleAdmin,
			PasswordHash:    hash,
			IsActive:        true,
			IsEmailVerified: true,
		})
		if err != nil {
			if dup, ok := store.AsDuplicate(err); ok {
				return fmt.Errorf("%s already in use", dup.Field)
			}
			return fmt.Errorf("create admin: %w", err)
		}

		fmt.Printf("created admin %s (id=%d)\n", user.Email, user.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)

	createAdminCmd.Flags().StringVar(&adminName, "name", "", "full name")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "email address")
	createAdminCmd.Flags().StringVar(&adminPhone, "phone", "", "phone number")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "password (min 8 characters)")
}
