package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
)

// addressCmd represents the address command.
var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the address for the configured wallet",
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()

		privateKey, err := crypto.LoadPrivateKey(f)
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(crypto.PublicKeyToAddress(&privateKey.PublicKey))
	},
}

func init() {
	rootCmd.AddCommand(addressCmd)
}
