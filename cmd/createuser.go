package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"quince/internal/pkg/id"
	"quince/internal/pkg/password"
	"quince/internal/pkg/sqlite"
	"quince/internal/repository"
)

var createUserCmd = &cobra.Command{
	Use:   "create-user <email> <password>",
	Short: "Create a verified user account",
	Long:  `Create a user account directly in the database, skipping email verification.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runCreateUser,
}

func init() {
	rootCmd.AddCommand(createUserCmd)
}

func runCreateUser(cmd *cobra.Command, args []string) error {
	email, pass := args[0], args[1]

	if err := password.Validate(pass, pass); err != nil {
		return err
	}

	db, err := sqlite.New(&GetConfig().Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	ctx := context.Background()
	users := repository.NewUserRepo(db)

	exists, err := users.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("user %s already exists", email)
	}

	hash, err := password.Hash(pass)
	if err != nil {
		return err
	}

	userID, err := users.Create(ctx, email, hash, id.Token())
	if err != nil {
		return err
	}
	if err := users.SetVerified(ctx, userID); err != nil {
		return err
	}

	log.Info().Int64("user_id", userID).Str("email", email).Msg("user created")
	return nil
}
