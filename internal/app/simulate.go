package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"presyo-watcher/internal/prices"
	"presyo-watcher/internal/service"
)

// SimulateAlert 用两期合成价格走一遍告警流程，不读取任何报告。
func (a *App) SimulateAlert(ctx context.Context, commodity string, from, to decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}
	commodity = strings.TrimSpace(commodity)
	if commodity == "" {
		return errors.New("--commodity is required")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	calc, err := a.newCalculator()
	if err != nil {
		return err
	}

	today := time.Now().In(a.Config.SourceLocation())
	series := []prices.Point{
		{Date: today.AddDate(0, 0, -1), Price: from},
		{Date: today, Price: to},
	}
	trends := map[string]prices.TrendSummary{commodity: calc.Summarize(commodity, series)}

	svc := service.New(a.Config, nil, nil, calc, nil, notifier, a.Logger)
	sent := svc.NotifyMovers(ctx, trends)
	if len(sent) == 0 {
		a.printf("%s moved %s%%, below the %.2f%% threshold; nothing sent\n",
			commodity, formatDecimal(trends[commodity].PriceChangePct, 2), a.Config.Alerting.ThresholdPct)
		return nil
	}
	a.printf("simulated alert dispatched for %s\n", commodity)
	return nil
}
