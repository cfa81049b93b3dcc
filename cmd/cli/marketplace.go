package cli

import (
	"github.com/spf13/cobra"

	"mochimo-mam/core"
)

var MarketplaceCmd = &cobra.Command{
	Use:   "marketplace",
	Short: "Escrow-based offer listing and matching",
}

var marketplaceCreateCmd = &cobra.Command{
	Use:   "create <offer-fee> <match-fee>",
	Short: "One-shot initialize the marketplace instance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		offerFee, err := parseUint64(args[0])
		if err != nil {
			return err
		}
		matchFee, err := parseUint64(args[1])
		if err != nil {
			return err
		}
		caller, err := callerFlag(cmd)
		if err != nil {
			return err
		}
		maxGas, err := maxGasFlag(cmd)
		if err != nil {
			return err
		}

		params := append(core.PackUint64(offerFee), core.PackUint64(matchFee)...)
		params = append(params, byte(AssetsInstanceID>>24), byte(AssetsInstanceID>>16), byte(AssetsInstanceID>>8), byte(AssetsInstanceID))

		gasUsed, gasCost, err := rt.Call(false, caller, maxGas, MarketplaceInstanceID, core.SelectorMarketplaceCreate, params)
		return reportCall(cmd, gasUsed, gasCost, err)
	},
}

func encodeGoodsOrPrice(symbol [4]byte, amount uint64) []byte {
	return append(append([]byte{}, symbol[:]...), core.PackUint64(amount)...)
}

var marketplaceListCmd = &cobra.Command{
	Use:   "list <good-symbol> <good-amount> <price-symbol> <price-amount> [counterparty]",
	Short: "Escrow a good and list it for sale, optionally restricted to one counterparty",
	Args:  cobra.RangeArgs(4, 5),
	RunE: func(cmd *cobra.Command, args []string) error {
		goodSymbol, err := parseSymbol(args[0])
		if err != nil {
			return err
		}
		goodAmount, err := parseUint64(args[1])
		if err != nil {
			return err
		}
		priceSymbol, err := parseSymbol(args[2])
		if err != nil {
			return err
		}
		priceAmount, err := parseUint64(args[3])
		if err != nil {
			return err
		}
		counterparty := core.AddressZero
		if len(args) == 5 {
			counterparty, err = rootDecodeAddr(args[4])
			if err != nil {
				return err
			}
		}
		caller, err := callerFlag(cmd)
		if err != nil {
			return err
		}
		maxGas, err := maxGasFlag(cmd)
		if err != nil {
			return err
		}

		goodsArr, err := core.ArrayToBytes([][]byte{encodeGoodsOrPrice(goodSymbol, goodAmount)})
		if err != nil {
			return err
		}
		priceArr, err := core.ArrayToBytes([][]byte{encodeGoodsOrPrice(priceSymbol, priceAmount)})
		if err != nil {
			return err
		}

		params := writeLen8(uint64(len(goodsArr)))
		params = append(params, goodsArr...)
		params = append(params, writeLen8(uint64(len(priceArr)))...)
		params = append(params, priceArr...)
		params = append(params, counterparty.Bytes()...)

		gasUsed, gasCost, err := rt.Call(false, caller, maxGas, MarketplaceInstanceID, core.SelectorMarketplaceList, params)
		return reportCall(cmd, gasUsed, gasCost, err)
	},
}

var marketplaceMatchCmd = &cobra.Command{
	Use:   "match <seller> <offer-id>",
	Short: "Pay an offer's price and receive its escrowed goods",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		seller, err := rootDecodeAddr(args[0])
		if err != nil {
			return err
		}
		offerID, err := parseUint64(args[1])
		if err != nil {
			return err
		}
		caller, err := callerFlag(cmd)
		if err != nil {
			return err
		}
		maxGas, err := maxGasFlag(cmd)
		if err != nil {
			return err
		}

		params := append(append([]byte{}, seller.Bytes()...), core.PackUint64(offerID)...)

		gasUsed, gasCost, err := rt.Call(false, caller, maxGas, MarketplaceInstanceID, core.SelectorMarketplaceMatch, params)
		return reportCall(cmd, gasUsed, gasCost, err)
	},
}

func writeLen8(n uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[7-i] = byte(n >> (8 * i))
	}
	return out
}

func init() {
	MarketplaceCmd.PersistentFlags().String("caller", "", "caller address (hex)")
	MarketplaceCmd.PersistentFlags().Uint64("max-gas", 300000, "max gas for a committed call")
	MarketplaceCmd.AddCommand(marketplaceCreateCmd, marketplaceListCmd, marketplaceMatchCmd)
}
