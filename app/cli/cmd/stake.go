package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
)

type minerInfo struct {
	Address           string `json:"address"`
	StakeAmount       string `json:"stake_amount"`
	ParticipationRate string `json:"participation_rate"`
}

// stakeCmd prints the stake amount and participation rate a node has on
// record for the configured wallet's account.
var stakeCmd = &cobra.Command{
	Use:   "stake",
	Short: "Print the stake and participation rate held for this account",
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
		account := crypto.PublicKeyToAddress(&privateKey.PublicKey)

		resp, err := http.Get(fmt.Sprintf("%s/node_api/v1/temp/miners/%s", nodeURL, account))
		if err != nil {
			log.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			log.Fatalf("node returned %s for account %s", resp.Status, account)
		}

		var info minerInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			log.Fatal(err)
		}

		fmt.Printf("account %s: stake %s, participation rate %s\n", info.Address, info.StakeAmount, info.ParticipationRate)
	},
}

func init() {
	rootCmd.AddCommand(stakeCmd)
}
