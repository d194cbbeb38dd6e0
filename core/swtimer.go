package core

import "sync/atomic"

// TimerMode selects one-shot or periodic expiry.
type TimerMode uint8

const (
	// TimerOnce fires the callback once and stops.
	TimerOnce TimerMode = iota
	// TimerPeriodic fires the callback every period.
	TimerPeriodic
)

// TimerCallback runs from TimerPool.Dispatch in main-loop context.
type TimerCallback func(arg any)

// TimerHandle identifies a timer slot in its pool.
type TimerHandle uint8

// DefaultTimerCapacity is the pool size when NewTimerPool is given no
// explicit capacity.
const DefaultTimerCapacity = 16

type timerSlot struct {
	used      bool
	running   bool
	paused    bool
	mode      TimerMode
	periodMs  uint32
	startTick uint32
	remaining uint32 // milliseconds left, valid while paused
	callback  TimerCallback
	arg       any
	nextFree  int16
}

type dueEntry struct {
	callback TimerCallback
	arg      any
}

// TimerPool is a fixed arena of millisecond software timers driven by the
// tick interrupt. Update runs in interrupt context and only marks timers
// due; Dispatch drains the due queue and runs the callbacks in main-loop
// context, so callbacks may themselves start, stop or create timers.
//
// The due queue snapshots callback and argument when a timer expires:
// deleting or retargeting a timer between Update and Dispatch cannot make a
// stale entry fire the slot's new occupant, though it also does not recall
// an expiry already queued.
type TimerPool struct {
	tb       *TimeBase
	slots    []timerSlot
	freeHead int16
	active   int

	due     []dueEntry
	dueMask uint32
	dueHead uint32 // atomic; consumer index
	dueTail uint32 // atomic; producer index
	dropped uint32 // atomic
}

// stampTick adjusts t for storage as a start stamp. A stored 0 reads as
// the "never" sentinel in Elapsed and would expire the timer immediately,
// so a stamp landing on 0 (boot, or the instant the counter wraps) is
// nudged one tick back. The timer then fires at most one tick early.
func stampTick(t uint32) uint32 {
	if t == 0 {
		return TickMax
	}
	return t
}

// NewTimerPool returns a pool with the given capacity (DefaultTimerCapacity
// when capacity <= 0, at most 255 slots). Pass the pool's Update to
// TimeBase.AddTickHandler to drive it.
func NewTimerPool(tb *TimeBase, capacity int) *TimerPool {
	if capacity <= 0 {
		capacity = DefaultTimerCapacity
	}
	if capacity > 255 {
		capacity = 255
	}
	p := &TimerPool{
		tb:    tb,
		slots: make([]timerSlot, capacity),
	}
	for i := range p.slots {
		p.slots[i].nextFree = int16(i) + 1
	}
	p.slots[capacity-1].nextFree = -1
	p.freeHead = 0

	// Due queue sized for a full pool expiring twice before a drain.
	ringSize := uint32(1)
	for ringSize < uint32(2*capacity) {
		ringSize <<= 1
	}
	p.due = make([]dueEntry, ringSize)
	p.dueMask = ringSize - 1
	return p
}

// Capacity returns the number of slots in the pool.
func (p *TimerPool) Capacity() int {
	return len(p.slots)
}

// ActiveTimers returns the number of allocated slots.
func (p *TimerPool) ActiveTimers() int {
	return p.active
}

// DroppedDispatches returns how many expirations were lost to a full due
// queue (Dispatch not keeping up with Update).
func (p *TimerPool) DroppedDispatches() uint32 {
	return atomic.LoadUint32(&p.dropped)
}

// Create allocates a timer. The timer is stopped; Start arms it.
func (p *TimerPool) Create(periodMs uint32, mode TimerMode, callback TimerCallback, arg any) (TimerHandle, error) {
	if periodMs == 0 {
		return 0, ErrZeroPeriod
	}
	if p.freeHead < 0 {
		return 0, ErrPoolExhausted
	}
	state := disableInterrupts()
	h := p.freeHead
	s := &p.slots[h]
	p.freeHead = s.nextFree
	*s = timerSlot{
		used:     true,
		mode:     mode,
		periodMs: periodMs,
		callback: callback,
		arg:      arg,
		nextFree: -1,
	}
	p.active++
	restoreInterrupts(state)
	return TimerHandle(h), nil
}

// Delete stops the timer and returns its slot to the pool.
func (p *TimerPool) Delete(h TimerHandle) error {
	s, err := p.get(h)
	if err != nil {
		return err
	}
	state := disableInterrupts()
	*s = timerSlot{nextFree: p.freeHead}
	p.freeHead = int16(h)
	p.active--
	restoreInterrupts(state)
	return nil
}

// Start arms the timer from now. Starting a running timer restarts it;
// any paused state is discarded.
func (p *TimerPool) Start(h TimerHandle) error {
	s, err := p.get(h)
	if err != nil {
		return err
	}
	state := disableInterrupts()
	s.startTick = stampTick(p.tb.Tick())
	s.running = true
	s.paused = false
	restoreInterrupts(state)
	return nil
}

// Restart is Start: the full period begins again from now.
func (p *TimerPool) Restart(h TimerHandle) error {
	return p.Start(h)
}

// Stop disarms the timer. A stopped timer forgets its pause state. An
// expiry already queued for dispatch still fires.
func (p *TimerPool) Stop(h TimerHandle) error {
	s, err := p.get(h)
	if err != nil {
		return err
	}
	state := disableInterrupts()
	s.running = false
	s.paused = false
	restoreInterrupts(state)
	return nil
}

// Pause freezes a running timer, storing the time it had left. A timer at
// or past expiry pauses with zero remaining.
func (p *TimerPool) Pause(h TimerHandle) error {
	s, err := p.get(h)
	if err != nil {
		return err
	}
	state := disableInterrupts()
	defer restoreInterrupts(state)
	if !s.running {
		return ErrNotRunning
	}
	if s.paused {
		return ErrAlreadyPaused
	}
	elapsed := Elapsed(p.tb.Tick(), s.startTick)
	if elapsed >= s.periodMs {
		s.remaining = 0
	} else {
		s.remaining = s.periodMs - elapsed
	}
	s.paused = true
	return nil
}

// Resume continues a paused timer with its stored remaining time: the
// start tick is backdated so the timer expires remaining milliseconds from
// now.
func (p *TimerPool) Resume(h TimerHandle) error {
	s, err := p.get(h)
	if err != nil {
		return err
	}
	state := disableInterrupts()
	defer restoreInterrupts(state)
	if !s.paused {
		return ErrNotPaused
	}
	// Unsigned arithmetic wraps exactly like the tick counter does.
	s.startTick = stampTick(p.tb.Tick() - (s.periodMs - s.remaining))
	s.paused = false
	return nil
}

// SetPeriod changes the timer's period in place.
//
// Running: elapsed time is preserved; if the timer is already past the new
// period it is backdated to expire on the next update. Paused: the stored
// remaining time is kept, capped at the new period. Stopped: takes effect
// on the next Start.
func (p *TimerPool) SetPeriod(h TimerHandle, periodMs uint32) error {
	if periodMs == 0 {
		return ErrZeroPeriod
	}
	s, err := p.get(h)
	if err != nil {
		return err
	}
	state := disableInterrupts()
	defer restoreInterrupts(state)
	switch {
	case s.paused:
		if s.remaining > periodMs {
			s.remaining = periodMs
		}
	case s.running:
		now := p.tb.Tick()
		if Elapsed(now, s.startTick) >= periodMs {
			s.startTick = stampTick(now - periodMs)
		}
	}
	s.periodMs = periodMs
	return nil
}

// IsRunning reports whether the timer is armed and not paused.
func (p *TimerPool) IsRunning(h TimerHandle) (bool, error) {
	s, err := p.get(h)
	if err != nil {
		return false, err
	}
	return s.running && !s.paused, nil
}

// RemainingTime returns the milliseconds until the timer expires: the
// stored remainder while paused, zero when stopped or already due.
func (p *TimerPool) RemainingTime(h TimerHandle) (uint32, error) {
	s, err := p.get(h)
	if err != nil {
		return 0, err
	}
	if s.paused {
		return s.remaining, nil
	}
	if !s.running {
		return 0, nil
	}
	elapsed := Elapsed(p.tb.Tick(), s.startTick)
	if elapsed >= s.periodMs {
		return 0, nil
	}
	return s.periodMs - elapsed, nil
}

// ElapsedTime returns the milliseconds the timer has been counting: the
// period minus the stored remainder while paused (capped at the period),
// zero when stopped.
func (p *TimerPool) ElapsedTime(h TimerHandle) (uint32, error) {
	s, err := p.get(h)
	if err != nil {
		return 0, err
	}
	if s.paused {
		if s.remaining > s.periodMs {
			return 0, nil
		}
		return s.periodMs - s.remaining, nil
	}
	if !s.running {
		return 0, nil
	}
	return Elapsed(p.tb.Tick(), s.startTick), nil
}

// Update scans for expired timers. It runs in interrupt context once per
// tick (register it with TimeBase.AddTickHandler): periodic timers are
// restamped for the next period, one-shots disarmed, and the callbacks
// queued for Dispatch.
func (p *TimerPool) Update(now uint32) {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.used || !s.running || s.paused {
			continue
		}
		if Elapsed(now, s.startTick) < s.periodMs {
			continue
		}
		p.enqueue(s.callback, s.arg)
		if s.mode == TimerPeriodic {
			s.startTick = stampTick(now)
		} else {
			s.running = false
		}
	}
}

// Dispatch runs queued expiry callbacks. Call it from the main loop; it
// returns the number of callbacks run.
func (p *TimerPool) Dispatch() int {
	n := 0
	for {
		h := atomic.LoadUint32(&p.dueHead)
		t := atomic.LoadUint32(&p.dueTail)
		if h == t {
			return n
		}
		e := p.due[h&p.dueMask]
		atomic.StoreUint32(&p.dueHead, h+1)
		if e.callback != nil {
			e.callback(e.arg)
		}
		n++
	}
}

func (p *TimerPool) enqueue(callback TimerCallback, arg any) {
	t := atomic.LoadUint32(&p.dueTail)
	h := atomic.LoadUint32(&p.dueHead)
	if t-h > p.dueMask {
		atomic.AddUint32(&p.dropped, 1)
		return
	}
	p.due[t&p.dueMask] = dueEntry{callback: callback, arg: arg}
	atomic.StoreUint32(&p.dueTail, t+1)
}

func (p *TimerPool) get(h TimerHandle) (*timerSlot, error) {
	if int(h) >= len(p.slots) || !p.slots[h].used {
		return nil, ErrInvalidHandle
	}
	return &p.slots[h], nil
}
