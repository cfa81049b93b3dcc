package cli

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mochimo-mam/core"
)

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func parseUint64(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return n, nil
}

func parseSymbol(s string) ([4]byte, error) {
	var out [4]byte
	if len(s) == 0 || len(s) > 4 {
		return out, fmt.Errorf("symbol %q must be 1-4 bytes", s)
	}
	copy(out[:], s)
	return out, nil
}

// reportCall prints the outcome of a committed call and flushes both stores
// to disk on success.
func reportCall(cmd *cobra.Command, gasUsed, gasCost uint64, callErr error) error {
	if callErr != nil {
		return callErr
	}
	if err := persistRuntime(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: gas_used=%d gas_cost=%d\n", gasUsed, gasCost)
	return nil
}

func maxGasFlag(cmd *cobra.Command) (*uint64, error) {
	v, err := cmd.Flags().GetUint64("max-gas")
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func callerFlag(cmd *cobra.Command) (core.Address, error) {
	s, err := cmd.Flags().GetString("caller")
	if err != nil {
		return core.Address{}, err
	}
	return rootDecodeAddr(s)
}
