package cmd

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/bowlofstew/credo-core-node/foundation/blockchain/crypto"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/decimal"
	"github.com/bowlofstew/credo-core-node/foundation/blockchain/tx"
)

var (
	sendTo    string
	sendValue string
	sendFee   string
	sendData  string
	sendNonce uint64
)

// sendCmd signs a transfer transaction and submits it to a node's pending
// transaction endpoint.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign and submit a transfer transaction",
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

		to, err := crypto.ParseAddress(sendTo)
		if err != nil {
			log.Fatal(err)
		}

		value, err := decimal.Parse(sendValue)
		if err != nil {
			log.Fatal(err)
		}

		fee, err := decimal.Parse(sendFee)
		if err != nil {
			log.Fatal(err)
		}

		var data []byte
		if sendData != "" {
			data = []byte(sendData)
		}

		signed, err := tx.New(sendNonce, to, value, fee, data).Sign(privateKey)
		if err != nil {
			log.Fatal(err)
		}

		if err := submit(signed); err != nil {
			log.Fatal(err)
		}
	},
}

func submit(signed tx.Tx) error {
	hash, err := signed.Hash()
	if err != nil {
		return err
	}

	body, err := signed.Encode()
	if err != nil {
		return err
	}

	envelope, err := json.Marshal(map[string]string{
		"hash": hex.EncodeToString(hash[:]),
		"body": hex.EncodeToString(body),
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(fmt.Sprintf("%s/node_api/v1/temp/pending_transactions", nodeURL), "application/json", bytes.NewReader(envelope))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node rejected transaction: %s", resp.Status)
	}

	fmt.Println("submitted", hex.EncodeToString(hash[:]))
	return nil
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendTo, "to", "t", "", "Recipient address.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.Flags().StringVarP(&sendValue, "value", "v", "0", "Amount to send.")
	sendCmd.Flags().StringVarP(&sendFee, "fee", "c", "0", "Fee offered to the proposing miner.")
	sendCmd.Flags().StringVarP(&sendData, "data", "d", "", "Opaque application data.")
	sendCmd.Flags().Uint64VarP(&sendNonce, "nonce", "o", 0, "Account nonce for this transaction.")
}
