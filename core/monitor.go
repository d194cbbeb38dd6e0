package core

// Monitor thresholds.
const (
	// alarmLoadPercent is the interval load at which the monitor raises a
	// high-load alarm.
	alarmLoadPercent = 90
	// alarmSuppressMs is the minimum spacing between repeated alarms.
	alarmSuppressMs = 5000
)

// MonitorStatus is a snapshot of the clock subsystem's health counters.
type MonitorStatus struct {
	UptimeMs          uint32
	FreqHz            uint32
	Level             FreqLevel
	Mode              Mode
	Load              uint8
	CoarseLoad        uint8
	PeakLoad          uint8
	SwitchCount       uint32
	ActiveTimers      int
	DroppedDispatches uint32
	Alarms            uint32
}

// Monitor watches the governor and timer pool, tracks the load peak and
// raises rate-limited alarms on the debug writer. Drive Task from a
// periodic software timer or the main loop.
type Monitor struct {
	tb   *TimeBase
	gov  *Governor
	pool *TimerPool

	peakLoad      uint8
	lastAlarmTick uint32
	alarmCount    uint32
	lastDropped   uint32
}

// NewMonitor returns a monitor over the given subsystem parts.
func NewMonitor(tb *TimeBase, gov *Governor, pool *TimerPool) *Monitor {
	return &Monitor{tb: tb, gov: gov, pool: pool}
}

// Task samples the estimators and raises alarms. The signature matches
// TimerCallback so it can be registered as a periodic timer directly.
func (m *Monitor) Task(any) {
	now := m.tb.Tick()
	load := m.gov.Load()
	if load > m.peakLoad {
		m.peakLoad = load
	}
	if load >= alarmLoadPercent {
		m.alarm(now, "high load: "+utoa(uint32(load))+"%")
	}
	if dropped := m.pool.DroppedDispatches(); dropped != m.lastDropped {
		m.alarm(now, "dropped timer dispatches: "+utoa(dropped-m.lastDropped))
		m.lastDropped = dropped
	}
}

func (m *Monitor) alarm(now uint32, msg string) {
	if m.lastAlarmTick != 0 && Elapsed(now, m.lastAlarmTick) < alarmSuppressMs {
		return
	}
	m.lastAlarmTick = now
	m.alarmCount++
	DebugPrintln("[monitor] " + msg)
}

// Status returns a snapshot of the subsystem counters.
func (m *Monitor) Status() MonitorStatus {
	return MonitorStatus{
		UptimeMs:          m.tb.Tick(),
		FreqHz:            m.gov.CurrentFrequency(),
		Level:             m.gov.CurrentLevel(),
		Mode:              m.gov.CurrentMode(),
		Load:              m.gov.Load(),
		CoarseLoad:        m.gov.CoarseLoad(),
		PeakLoad:          m.peakLoad,
		SwitchCount:       m.gov.SwitchCount(),
		ActiveTimers:      m.pool.ActiveTimers(),
		DroppedDispatches: m.pool.DroppedDispatches(),
		Alarms:            m.alarmCount,
	}
}

// Report writes the status snapshot line by line to the debug writer.
func (m *Monitor) Report() {
	st := m.Status()
	DebugPrintln("[monitor] uptime=" + utoa(st.UptimeMs/1000) + "s" +
		" freq=" + utoa(st.FreqHz/1000000) + "MHz" +
		" mode=" + st.Mode.String())
	DebugPrintln("[monitor] load=" + utoa(uint32(st.Load)) + "%" +
		" coarse=" + utoa(uint32(st.CoarseLoad)) + "%" +
		" peak=" + utoa(uint32(st.PeakLoad)) + "%")
	DebugPrintln("[monitor] switches=" + utoa(st.SwitchCount) +
		" timers=" + utoa(uint32(st.ActiveTimers)) +
		" dropped=" + utoa(st.DroppedDispatches) +
		" alarms=" + utoa(st.Alarms))
}
