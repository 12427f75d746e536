package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/sarchlab/memsim/config"
	"github.com/sarchlab/memsim/datarecording"
	"github.com/sarchlab/memsim/idgen"
	"github.com/sarchlab/memsim/instrumentation/hooking"
	"github.com/sarchlab/memsim/mem/memaccessagent"
	"github.com/sarchlab/memsim/mem/memctrl"
	"github.com/sarchlab/memsim/mem/memreq"
	"github.com/sarchlab/memsim/monitoring"
	"github.com/sarchlab/memsim/timing"
	"github.com/sarchlab/memsim/tracing"
)

const bankStatsTable = "memsim_bank_stats"

// ErrStalled means the event queue drained while the traffic agent still
// waited for responses.
var ErrStalled = errors.New("memsim: simulation stalled")

// simulation is a memory controller, the traffic that drives it, and the
// optional observers attached to both.
type simulation struct {
	cfg      config.Config
	engine   *timing.SerialEngine
	requests *memreq.Arena
	ctrl     *memctrl.Comp
	agent    *memaccessagent.MemAccessAgent

	latency  *tracing.AverageTimeTracer
	steps    *tracing.StepCountTracer
	recorder datarecording.DataRecorder
	tracer   *tracing.DBTracer
	monitor  *monitoring.Monitor
}

func buildSimulation(cfg config.Config, eventLog io.Writer) *simulation {
	s := &simulation{
		cfg:      cfg,
		engine:   timing.NewSerialEngine(),
		requests: memreq.NewArena(cfg.MaxPending),
	}

	ids := idgen.New()

	s.agent = memaccessagent.MakeBuilder().
		WithEngine(s.engine).
		WithRequestArena(s.requests).
		WithIDGenerator(ids).
		WithSeed(cfg.Traffic.Seed).
		WithNumRequests(cfg.Traffic.NumRequests).
		WithNumCores(cfg.Traffic.NumCores).
		WithMaxOutstanding(cfg.Traffic.MaxOutstanding).
		WithAddressSpace(cfg.Traffic.AddressSpace).
		WithWriteRatio(cfg.Traffic.WriteRatio).
		WithUpdateRatio(cfg.Traffic.UpdateRatio).
		WithAnnulRatio(cfg.Traffic.AnnulRatio).
		WithRefuseRatio(cfg.Traffic.RefuseRatio).
		WithLogging(eventLog != nil).
		Build("Agent")

	s.ctrl = memctrl.MakeBuilder().
		WithEngine(s.engine).
		WithFreq(cfg.Freq()).
		WithLatencyNs(cfg.LatencyNs).
		WithNumBanks(cfg.NumBanks).
		WithMaxPending(cfg.MaxPending).
		WithRequestArena(s.requests).
		WithInterconnect(s.agent).
		WithIDGenerator(ids).
		Build("MemCtrl")

	s.agent.ConnectMemory(s.ctrl)

	s.latency = tracing.NewAverageTimeTracer(tracing.AllTasks)
	tracing.CollectTrace(s.ctrl, s.latency)

	s.steps = tracing.NewStepCountTracer(tracing.AllTasks)
	tracing.CollectTrace(s.ctrl, s.steps)

	if eventLog != nil {
		s.engine.AcceptHook(timing.NewEventLogger(log.New(eventLog, "", 0)))
	}

	if cfg.TraceDB != "" {
		s.recorder = datarecording.New(cfg.TraceDB)
		s.tracer = tracing.NewDBTracer(s.recorder)
		tracing.CollectTrace(s.ctrl, s.tracer)
	}

	return s
}

// attachMonitor serves the simulation over HTTP and reports the traffic
// progress on a progress bar.
func (s *simulation) attachMonitor(openBrowser bool) int {
	s.monitor = monitoring.NewMonitor().
		WithPortNumber(s.cfg.MonitorPort).
		WithBrowser(openBrowser)
	s.monitor.RegisterEngine(s.engine)
	s.monitor.RegisterComponent(s.ctrl)
	s.monitor.RegisterComponent(s.agent)

	bar := s.monitor.CreateProgressBar(
		"Requests", uint64(s.cfg.Traffic.NumRequests))
	s.engine.AcceptHook(&progressHook{agent: s.agent, bar: bar})

	return s.monitor.StartServer()
}

func (s *simulation) run() error {
	s.agent.Start(s.engine.CurrentTime())
	return s.engine.Run()
}

// runToCompletion runs the simulation and checks that every request issued
// by the agent was answered or annulled.
func (s *simulation) runToCompletion() error {
	if err := s.run(); err != nil {
		return fmt.Errorf("memsim: simulation failed: %w", err)
	}

	if !s.agent.Done() {
		return fmt.Errorf("%w with %d outstanding requests",
			ErrStalled, s.agent.NumOutstanding())
	}

	return nil
}

type bankStatsEntry struct {
	Controller string
	Bank       int
	Privilege  string
	Access     uint64
	Read       uint64
	Write      uint64
	Update     uint64
}

// recordBankStats writes one row per bank and privilege level.
func (s *simulation) recordBankStats() {
	if s.recorder == nil {
		return
	}

	s.recorder.CreateTable(bankStatsTable, bankStatsEntry{})

	for i, b := range s.ctrl.Stats().Banks {
		for _, row := range []struct {
			privilege string
			c         memctrl.OpCounters
		}{{"kernel", b.Kernel}, {"user", b.User}} {
			s.recorder.InsertData(bankStatsTable, bankStatsEntry{
				Controller: s.ctrl.Name(),
				Bank:       i,
				Privilege:  row.privilege,
				Access:     row.c.Access,
				Read:       row.c.Read,
				Write:      row.c.Write,
				Update:     row.c.Update,
			})
		}
	}

	s.recorder.Flush()
}

// progressHook keeps a progress bar in line with the requests of an agent.
type progressHook struct {
	agent *memaccessagent.MemAccessAgent
	bar   *monitoring.ProgressBar
}

func (h *progressHook) Func(ctx hooking.HookCtx) {
	if ctx.Pos != timing.HookPosAfterEvent {
		return
	}

	issued := h.agent.Stats().Issued
	outstanding := uint64(h.agent.NumOutstanding())
	h.bar.Set(outstanding, issued-outstanding)
}
