// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/buslink/pkg/breaker"
	"github.com/Thermoquad/buslink/pkg/frame"
	"github.com/Thermoquad/buslink/pkg/transactor"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type watchModel struct {
	tx       *transactor.Transactor
	connInfo string
	request  frame.Request
	class    transactor.OperationClass
	interval time.Duration
	callOpts []transactor.CallOption

	spinner       spinner.Model
	inFlight      bool
	stats         transactor.Statistics
	breaker       breaker.Snapshot
	lastOutcome   *transactor.Outcome
	lastPayloadAt time.Time
	eventLog      []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

// Messages
type pollTickMsg time.Time
type pollResultMsg struct {
	outcome transactor.Outcome
	at      time.Time
}

func newWatchModel(tx *transactor.Transactor, connInfo string, req frame.Request, class transactor.OperationClass, interval time.Duration, callOpts []transactor.CallOption) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return watchModel{
		tx:            tx,
		connInfo:      connInfo,
		request:       req,
		class:         class,
		interval:      interval,
		callOpts:      callOpts,
		spinner:       sp,
		stats:         tx.Statistics(),
		breaker:       tx.Breaker().Snapshot(),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.poll(),
		tea.EnterAltScreen,
	)
}

func (m watchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return pollTickMsg(t)
	})
}

// poll runs one transaction off the UI goroutine
func (m watchModel) poll() tea.Cmd {
	tx, req, class, opts := m.tx, m.request, m.class, m.callOpts
	return func() tea.Msg {
		o := tx.TransactOutcome(context.Background(), req.Address, req.Command, req.Payload, class, opts...)
		return pollResultMsg{outcome: o, at: time.Now()}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.tx.Breaker().ForceReset()
			m.addLogEntry("Breaker reset by operator", false)
		case "o":
			m.tx.Breaker().ForceOpen()
			m.addLogEntry("Breaker forced open by operator", true)
		case "c":
			m.tx.ResetStatistics()
			m.addLogEntry("Statistics cleared", false)
		case "i":
			if err := m.tx.Invalidate(context.Background(), "*"); err != nil {
				m.addLogEntry(fmt.Sprintf("Cache invalidation failed: %v", err), true)
			} else {
				m.addLogEntry("Cache invalidated", false)
			}
		}
		m.stats = m.tx.Statistics()
		m.breaker = m.tx.Breaker().Snapshot()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pollTickMsg:
		if m.inFlight {
			return m, m.tick()
		}
		m.inFlight = true
		return m, m.poll()

	case pollResultMsg:
		m.inFlight = false
		prevState := m.breaker.State
		m.lastOutcome = &msg.outcome
		m.stats = m.tx.Statistics()
		m.breaker = m.tx.Breaker().Snapshot()

		if msg.outcome.Success {
			m.lastPayloadAt = msg.at
		} else {
			m.addLogEntry(describeFailure(msg.outcome.Err), true)
		}
		if m.breaker.State != prevState {
			m.addLogEntry(fmt.Sprintf("Breaker %s -> %s", prevState, m.breaker.State), m.breaker.State == breaker.Open)
		}
		return m, m.tick()
	}

	return m, nil
}

func (m *watchModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("BUSLINK - WATCH"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %s to %d every %v | q quit, r reset, o open, c clear, i invalidate",
		m.connInfo, frame.FormatCommand(m.request.Command), m.request.Address, m.interval)))
	s.WriteString("\n\n")

	// Breaker
	var stateText string
	switch m.breaker.State {
	case breaker.Closed:
		stateText = valueStyle.Render("CLOSED")
	case breaker.HalfOpen:
		stateText = warningStyle.Render("HALF-OPEN")
	default:
		stateText = errorStyle.Render("OPEN")
	}
	breakerContent := fmt.Sprintf("%s %s   %s %d/%d   %s %d/%d",
		labelStyle.Render("Breaker:"), stateText,
		labelStyle.Render("Failures:"), m.breaker.FailureCount, m.breaker.FailureThreshold,
		labelStyle.Render("Probes:"), m.breaker.SuccessCount, m.breaker.SuccessThreshold,
	)
	if m.breaker.State == breaker.Open {
		breakerContent += fmt.Sprintf("   %s %v", labelStyle.Render("Retry in:"),
			m.tx.Breaker().RetryIn().Round(time.Second))
	}
	s.WriteString(boxStyle.Render(breakerContent))
	s.WriteString("\n\n")

	// Statistics
	st := m.stats
	attemptErrors := st.Timeouts + st.IOErrors + st.CRCErrors + st.FrameErrors + st.ResponseMismatch
	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Total:"), valueStyle.Render(fmt.Sprintf("%d", st.Transactions)),
		labelStyle.Render("OK:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.Succeeded, st.SuccessRate())),
		labelStyle.Render("Failed:"), errorStyle.Render(fmt.Sprintf("%d", st.Failed)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Attempts:"), valueStyle.Render(fmt.Sprintf("%d", st.Attempts)),
		labelStyle.Render("Cache hits:"), valueStyle.Render(fmt.Sprintf("%d", st.CacheHits)),
		labelStyle.Render("Circuit open:"), warningStyle.Render(fmt.Sprintf("%d", st.CircuitOpen)),
	))
	if attemptErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d, %s: %d)\n",
			labelStyle.Render("Attempt errors:"), errorStyle.Render(fmt.Sprintf("%d", attemptErrors)),
			headerStyle.Render("timeout"), st.Timeouts,
			headerStyle.Render("crc"), st.CRCErrors,
			headerStyle.Render("mismatch"), st.ResponseMismatch,
			headerStyle.Render("other"), st.FrameErrors+st.IOErrors,
		))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Avg latency:"), valueStyle.Render(st.AverageLatency().Round(time.Microsecond).String()),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f tx/s", st.TransactionRate)),
	))
	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Latest response
	s.WriteString(labelStyle.Render("Latest Response:"))
	if m.inFlight {
		s.WriteString(" " + m.spinner.View())
	}
	s.WriteString("\n")
	var latest string
	switch {
	case m.lastOutcome == nil:
		latest = headerStyle.Render("(waiting for first response)")
	case m.lastPayloadAt.IsZero():
		latest = errorStyle.Render("no valid response yet")
	default:
		latest = fmt.Sprintf("%s %s\n%s",
			headerStyle.Render(m.lastPayloadAt.Format("15:04:05.000")),
			formatWatchPayload(m.request.Command, m.lastOutcome),
			headerStyle.Render(fmt.Sprintf("%d attempt(s), %v", m.lastOutcome.Attempts, m.lastOutcome.Elapsed.Round(time.Microsecond))))
	}
	s.WriteString(boxStyle.Render(latest))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 20 // Reserve space for header and panels
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))

	return s.String()
}

// formatWatchPayload renders registers for register reads and hex otherwise
func formatWatchPayload(command uint8, o *transactor.Outcome) string {
	if command == frame.CmdReadHoldingRegisters || command == frame.CmdReadInputRegisters {
		if regs, err := frame.ParseRegisters(o.Payload); err == nil {
			parts := make([]string, len(regs))
			for i, r := range regs {
				parts[i] = fmt.Sprintf("R%d=%d", i, r)
			}
			return strings.Join(parts, "  ")
		}
	}
	if len(o.Payload) == 0 {
		return "ACK"
	}
	return frame.FormatHex(o.Payload)
}
