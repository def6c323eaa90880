/*

This file contains the console status report.

The report prints wallet capital, every open position with its live
metrics, and the top of the last scan. Positions approaching an exit
threshold are flagged so an operator watching the console sees trouble
before the trigger fires.

*/

package bot

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/karlokr/raydium-lp-bot/internal/state"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

// thresholdWarnFraction flags a position once a metric has covered this
// much of the distance to its exit threshold.
const thresholdWarnFraction = 0.8

// statusOut is swapped in tests to capture the report.
var statusOut io.Writer = os.Stdout

func (b *Bot) printStatus(ctx context.Context) {
	open := b.positions.List()
	balance := b.WalletBalance(ctx, false)
	deployed := b.positions.DeployedCapital()
	solUSD := b.market.SOLPriceUSD()

	var totalPnL float64
	for _, pos := range open {
		totalPnL += pos.UnrealizedPnLSOL
	}

	now := time.Now().Format("15:04:05")
	fmt.Fprintf(statusOut, "\n[%s] positions %d/%d | wallet %.4f SOL | deployed %.4f SOL | P&L %+.4f SOL",
		now, len(open), b.params.MaxConcurrentPositions, balance, deployed, totalPnL)
	if solUSD > 0 {
		fmt.Fprintf(statusOut, " ($%.2f)", totalPnL*solUSD)
	}
	fmt.Fprintln(statusOut)

	if len(open) > 0 {
		table := tablewriter.NewWriter(statusOut)
		table.Header("Pool", "Age", "Capital", "Value", "P&L %", "IL %", "Fees", "Status")
		for _, pos := range open {
			table.Append(
				pos.PoolName,
				pos.HoldDuration().Round(time.Minute).String(),
				fmt.Sprintf("%.4f", pos.CapitalSOL),
				fmt.Sprintf("%.4f", pos.CurrentValueSOL),
				fmt.Sprintf("%+.2f", pos.PnLPercent),
				fmt.Sprintf("%.2f", pos.ILPercent),
				fmt.Sprintf("%.4f", pos.FeeIncomeSOL),
				b.positionStatus(pos),
			)
		}
		table.Render()
	}

	if scan := b.lastScanCopy(); len(scan) > 0 {
		limit := 5
		if len(scan) < limit {
			limit = len(scan)
		}
		var sb strings.Builder
		for i := 0; i < limit; i++ {
			if i > 0 {
				sb.WriteString(" | ")
			}
			fmt.Fprintf(&sb, "%s net%+.1f%% s%.0f", scan[i].Pool.Name,
				scan[i].Score.PredictedNetReturnPct, scan[i].Score.Score)
		}
		fmt.Fprintf(statusOut, "  top: %s\n", sb.String())
	}
}

// printSessionSummary reports the analytics mirror's aggregate view at
// shutdown. Skipped when the sink is disabled; the JSONL history is the
// authoritative record either way.
func (b *Bot) printSessionSummary() {
	if state.DB == nil {
		return
	}

	summary, err := state.GetPerformanceSummary()
	if err != nil {
		botLogger.Warn().Err(err).Msg("Performance summary unavailable")
		return
	}
	fmt.Fprintf(statusOut, "\nClosed trades: %d (%d winning) | total P&L %+.4f SOL | fees earned %.4f SOL | avg P&L %+.2f%% | worst IL %.2f%%\n",
		summary.TotalTrades, summary.WinningTrades, summary.TotalPnLSOL,
		summary.TotalFeesSOL, summary.AvgPnLPercent, summary.WorstILPercent)

	trades, err := state.GetRecentTrades(5)
	if err != nil || len(trades) == 0 {
		return
	}
	table := tablewriter.NewWriter(statusOut)
	table.Header("Pool", "Reason", "Held", "P&L SOL", "P&L %")
	for _, rec := range trades {
		table.Append(
			rec.PoolName,
			string(rec.Reason),
			rec.HoldDuration,
			fmt.Sprintf("%+.4f", rec.PnLSOL),
			fmt.Sprintf("%+.2f", rec.PnLPercent),
		)
	}
	table.Render()
}

// positionStatus renders the per-position state column, flagging
// metrics close to their exit thresholds.
func (b *Bot) positionStatus(pos types.Position) string {
	if pos.PendingExit {
		return "EXITING"
	}

	var flags []string
	if pos.PnLPercent < 0 && pos.PnLPercent <= b.params.StopLossPercent*thresholdWarnFraction {
		flags = append(flags, "near SL")
	}
	if pos.PnLPercent > 0 && pos.PnLPercent >= b.params.TakeProfitPercent*thresholdWarnFraction {
		flags = append(flags, "near TP")
	}
	if pos.ILPercent < 0 && pos.ILPercent <= b.params.MaxImpermanentLoss*thresholdWarnFraction {
		flags = append(flags, "near IL")
	}
	maxHold := time.Duration(b.params.MaxHoldTimeHours * float64(time.Hour))
	if pos.HoldDuration() >= time.Duration(float64(maxHold)*thresholdWarnFraction) {
		flags = append(flags, "near max hold")
	}

	if len(flags) == 0 {
		return "OK"
	}
	return strings.Join(flags, ", ")
}
