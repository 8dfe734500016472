package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/adsdash/pkg/sessionvalidator"
	"go.uber.org/zap"
)

func newStoreGrantCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "store-grant",
		Short: "Store Google Ads OAuth tokens for a user",
		RunE:  runStoreGrant,
	}
	command.Flags().String("user_id", "", "Application user id")
	command.Flags().String("access_token", "", "Google Ads access token (may be empty)")
	command.Flags().String("refresh_token", "", "Google Ads refresh token")
	return command
}

func runStoreGrant(command *cobra.Command, arguments []string) error {
	userID, _ := command.Flags().GetString("user_id")
	accessToken, _ := command.Flags().GetString("access_token")
	refreshToken, _ := command.Flags().GetString("refresh_token")
	if strings.TrimSpace(userID) == "" {
		return configError(configCodeMissingUserID, "user_id must be provided")
	}

	databaseURL := strings.TrimSpace(viper.GetString("database_url"))
	if databaseURL == "" {
		return configError(configCodeMissingDatabaseURL, "database_url must be provided to persist credentials")
	}
	databaseDriver, driverErr := loadDatabaseDriver()
	if driverErr != nil {
		return driverErr
	}
	credentials, _, closeStores, storeErr := openStores(command.Context(), databaseURL, databaseDriver, zap.NewNop())
	if storeErr != nil {
		return storeErr
	}
	defer closeStores()

	if saveErr := credentials.SaveGrant(command.Context(), userID, accessToken, refreshToken); saveErr != nil {
		return saveErr
	}
	fmt.Fprintf(command.OutOrStdout(), "stored credentials for %s\n", userID)
	return nil
}

func newDevTokenCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "dev-token",
		Short: "Mint a bearer session token for local development",
		RunE:  runDevToken,
	}
	command.Flags().String("user_id", "", "Subject of the session token")
	command.Flags().String("email", "", "Email claim of the session token")
	command.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return command
}

func runDevToken(command *cobra.Command, arguments []string) error {
	userID, _ := command.Flags().GetString("user_id")
	email, _ := command.Flags().GetString("email")
	ttl, _ := command.Flags().GetDuration("ttl")
	if strings.TrimSpace(userID) == "" {
		return configError(configCodeMissingUserID, "user_id must be provided")
	}
	signingKey := viper.GetString("session_signing_key")
	if signingKey == "" {
		return configError(configCodeMissingSessionSigningKey, "session_signing_key must be provided")
	}
	issuer := viper.GetString("session_issuer")
	if issuer == "" {
		return configError(configCodeMissingSessionIssuer, "session_issuer must be provided")
	}
	token, mintErr := sessionvalidator.Mint([]byte(signingKey), issuer, userID, email, time.Now().UTC(), ttl)
	if mintErr != nil {
		return mintErr
	}
	fmt.Fprintln(command.OutOrStdout(), token)
	return nil
}
