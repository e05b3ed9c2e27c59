package cmd

import (
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
)

// generateCmd represents the generate command.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.GeneratePrivateKey()
		if err != nil {
			log.Fatal(err)
		}

		path := getPrivateKeyPath()
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			log.Fatal(err)
		}

		f, err := os.Create(path)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()

		if err := crypto.SavePrivateKey(f, privateKey); err != nil {
			log.Fatal(err)
		}

		log.Printf("wrote key for account %s to %s", crypto.PublicKeyToAddress(&privateKey.PublicKey), path)
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
}
