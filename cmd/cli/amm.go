package cli

import (
	"github.com/spf13/cobra"

	"mochimo-mam/core"
)

var AMMCmd = &cobra.Command{
	Use:   "amm",
	Short: "Constant-product pool operations",
}

var ammCreateCmd = &cobra.Command{
	Use:   "create <token-a> <amount-a> <token-b> <amount-b> <fee-bps>",
	Short: "Seed a new pool from the caller's token balances",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokenA, err := parseSymbol(args[0])
		if err != nil {
			return err
		}
		amtA, err := parseUint64(args[1])
		if err != nil {
			return err
		}
		tokenB, err := parseSymbol(args[2])
		if err != nil {
			return err
		}
		amtB, err := parseUint64(args[3])
		if err != nil {
			return err
		}
		feeBps, err := parseUint64(args[4])
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

		params := append([]byte{}, tokenA[:]...)
		params = append(params, core.PackUint64(amtA)...)
		params = append(params, tokenB[:]...)
		params = append(params, core.PackUint64(amtB)...)
		params = append(params, byte(feeBps>>8), byte(feeBps))
		params = append(params, byte(AssetsInstanceID>>24), byte(AssetsInstanceID>>16), byte(AssetsInstanceID>>8), byte(AssetsInstanceID))

		gasUsed, gasCost, err := rt.Call(false, caller, maxGas, AMMInstanceID, core.SelectorAMMCreate, params)
		return reportCall(cmd, gasUsed, gasCost, err)
	},
}

var ammAddLiquidityCmd = &cobra.Command{
	Use:   "add-liquidity <amount-a> <max-amount-b>",
	Short: "Deposit liquidity at the current reserve ratio",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amtA, err := parseUint64(args[0])
		if err != nil {
			return err
		}
		maxAmtB, err := parseUint64(args[1])
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

		params := append(core.PackUint64(amtA), core.PackUint64(maxAmtB)...)
		gasUsed, gasCost, err := rt.Call(false, caller, maxGas, AMMInstanceID, core.SelectorAMMAddLiquidity, params)
		return reportCall(cmd, gasUsed, gasCost, err)
	},
}

var ammWithdrawLiquidityCmd = &cobra.Command{
	Use:   "withdraw-liquidity",
	Short: "Withdraw the caller's full liquidity position plus accrued fees",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := callerFlag(cmd)
		if err != nil {
			return err
		}
		maxGas, err := maxGasFlag(cmd)
		if err != nil {
			return err
		}
		gasUsed, gasCost, err := rt.Call(false, caller, maxGas, AMMInstanceID, core.SelectorAMMWithdrawLiquidity, nil)
		return reportCall(cmd, gasUsed, gasCost, err)
	},
}

var ammSwapCmd = &cobra.Command{
	Use:   "swap <a-to-b true|false> <amount-in> <min-out>",
	Short: "Execute a constant-product swap",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		aToB := args[0] == "true"
		amountIn, err := parseUint64(args[1])
		if err != nil {
			return err
		}
		minOut, err := parseUint64(args[2])
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

		flag := byte(0)
		if aToB {
			flag = 1
		}
		params := append([]byte{flag}, core.PackUint64(amountIn)...)
		params = append(params, core.PackUint64(minOut)...)

		gasUsed, gasCost, err := rt.Call(false, caller, maxGas, AMMInstanceID, core.SelectorAMMSwap, params)
		return reportCall(cmd, gasUsed, gasCost, err)
	},
}

func init() {
	AMMCmd.PersistentFlags().String("caller", "", "caller address (hex)")
	AMMCmd.PersistentFlags().Uint64("max-gas", 300000, "max gas for a committed call")
	AMMCmd.AddCommand(ammCreateCmd, ammAddLiquidityCmd, ammWithdrawLiquidityCmd, ammSwapCmd)
}
