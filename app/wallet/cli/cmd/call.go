package cmd

import (
	"log"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/minervachain/minerva/foundation/blockchain/address"
	"github.com/minervachain/minerva/foundation/blockchain/database"
)

// callCmd represents the call command
var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Call a deployed contract",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		fromID := address.FromPublicKey(privateKey.PublicKey)
		contractID, err := address.ToAccountID(to)
		if err != nil {
			log.Fatal(err)
		}

		tx := database.NewTx(database.TxContractCall, fromID, contractID, value, fee, nil, nonce)

		signedTx, err := tx.Sign(privateKey)
		if err != nil {
			log.Fatal(err)
		}

		submitTransaction(signedTx)
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	callCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Next nonce for the account.")
	callCmd.Flags().StringVarP(&to, "to", "t", "", "Contract account to call.")
	callCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
	callCmd.Flags().Uint64VarP(&fee, "fee", "f", 0, "Fee offered to the miner.")
}
