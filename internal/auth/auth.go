// Package auth retrieves the NGC API token used to authorize NVCF
// calls. The token is opaque to the rest of the tool; nothing here
// refreshes or persists it.
package auth

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	credentialDir  = ".nvcf-media-cli"
	credentialFile = "credentials.gpg"
)

// GetToken retrieves the NGC API token from available sources.
// Priority order:
//  1. NGC_API_KEY environment variable
//  2. GPG-encrypted file at ~/.nvcf-media-cli/credentials.gpg
func GetToken() (string, error) {
	if token := os.Getenv("NGC_API_KEY"); token != "" {
		log.Debug().Msg("Using NGC token from environment variable")
		return token, nil
	}

	token, err := getFromGPG()
	if err == nil && token != "" {
		log.Debug().Msg("Using NGC token from GPG encrypted file")
		return token, nil
	}

	log.Error().Err(err).Msg("Failed to retrieve NGC token")
	return "", fmt.Errorf("NGC token not found. Set NGC_API_KEY or store an encrypted token at ~/%s/%s", credentialDir, credentialFile)
}

// getFromGPG decrypts the token from the GPG-encrypted credentials file.
func getFromGPG() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	credPath := filepath.Join(home, credentialDir, credentialFile)

	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	cmd := exec.Command("gpg", "--decrypt", "--quiet", credPath)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("GPG decryption failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}
