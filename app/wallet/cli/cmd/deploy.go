package cmd

import (
	"log"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/minervachain/minerva/foundation/blockchain/address"
	"github.com/minervachain/minerva/foundation/blockchain/database"
)

var code []byte

// deployCmd represents the deploy command
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy contract bytecode",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		fromID := address.FromPublicKey(privateKey.PublicKey)
		contractID := address.NewContractID(fromID, nonce)

		tx := database.NewTx(database.TxContractCreate, fromID, "", value, fee, code, nonce)

		signedTx, err := tx.Sign(privateKey)
		if err != nil {
			log.Fatal(err)
		}

		submitTransaction(signedTx)
		log.Println("contract will deploy at:", contractID)
	},
}

func init() {
	rootCmd.AddCommand(deployCmd)
	deployCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	deployCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Next nonce for the account.")
	deployCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
	deployCmd.Flags().Uint64VarP(&fee, "fee", "f", 0, "Fee offered to the miner.")
	deployCmd.Flags().BytesHexVarP(&code, "code", "c", nil, "Contract bytecode in hex.")
}
