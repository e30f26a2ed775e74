package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateCommodity string
	simulateFrom      float64
	simulateTo        float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次价格变动并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateFrom <= 0 || simulateTo <= 0 {
			return errors.New("--from-price 与 --to-price 必须大于 0")
		}

		from := decimal.NewFromFloat(simulateFrom)
		to := decimal.NewFromFloat(simulateTo)
		return getApp().SimulateAlert(cmd.Context(), simulateCommodity, from, to)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCommodity, "commodity", "", "商品名称")
	simulateCmd.Flags().Float64Var(&simulateFrom, "from-price", 0, "起始价格 (PHP)")
	simulateCmd.Flags().Float64Var(&simulateTo, "to-price", 0, "当前价格 (PHP)")
}
