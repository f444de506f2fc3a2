// Package browser models a pooled browser process and its lifecycle state
// machine (spec §4.1 "BrowserInstance").
package browser

import "time"

// State is a node in the instance lifecycle DAG:
//
//	idle <-> active -> {unhealthy, recycling} -> disposed
//	unhealthy -> recycling -> disposed
type State string

const (
	StateIdle       State = "idle"
	StateActive     State = "active"
	StateUnhealthy  State = "unhealthy"
	StateRecycling  State = "recycling"
	StateDisposed   State = "disposed"
)

// transitions enumerates the legal edges of the state DAG; CanTransition
// consults this table so every caller enforces the same graph.
var transitions = map[State]map[State]bool{
	StateIdle:      {StateActive: true, StateUnhealthy: true, StateRecycling: true},
	StateActive:    {StateIdle: true, StateUnhealthy: true, StateRecycling: true},
	StateUnhealthy: {StateRecycling: true, StateDisposed: true},
	StateRecycling: {StateDisposed: true},
	StateDisposed:  {},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge.
func CanTransition(from, to State) bool {
	return transitions[from][to]
}

// Driver identifies which backend launched and owns the instance.
type Driver string

const (
	DriverPlaywright Driver = "playwright"
	DriverRod        Driver = "rod"
	DriverDocker     Driver = "docker"
)

// Instance is a single pooled browser process.
type Instance struct {
	ID            string    `json:"id"`
	Driver        Driver    `json:"driver"`
	State         State     `json:"state"`
	OwningSession string    `json:"owning_session,omitempty"`
	LaunchedAt    time.Time `json:"launched_at"`
	LastUsedAt    time.Time `json:"last_used_at"`
	UseCount      uint64    `json:"use_count"`
	PageCount     int       `json:"page_count"`
	ErrorCount    uint64    `json:"error_count"`
	ConsecutiveHealthFails int `json:"consecutive_health_fails"`
	// HealthScore starts at 100 and is adjusted by RecordHealthCheck; it
	// feeds the recycling engine's Health axis (spec §4.3).
	HealthScore float64 `json:"health_score"`
	// MemoryMB/CPUPercent are the most recent resource governor sample for
	// this instance (spec §4.3 "Resource-based"); zero until first sampled.
	MemoryMB   float64 `json:"memory_mb"`
	CPUPercent float64 `json:"cpu_percent"`
}

// ErrorRate reports the fraction of uses that recorded a driver error,
// 0 when the instance has never been used.
func (i *Instance) ErrorRate() float64 {
	if i.UseCount == 0 {
		return 0
	}
	return float64(i.ErrorCount) / float64(i.UseCount)
}

// Transition moves the instance to `to` if legal, returning false otherwise.
func (i *Instance) Transition(to State) bool {
	if !CanTransition(i.State, to) {
		return false
	}
	i.State = to
	return true
}

// RecordUse bumps usage bookkeeping on acquisition.
func (i *Instance) RecordUse(now time.Time) {
	i.UseCount++
	i.LastUsedAt = now
}

// RecordHealthCheck folds a health probe outcome into the consecutive-failure
// counter; three consecutive failures is the threshold callers use to mark
// an instance unhealthy (spec §4.2).
func (i *Instance) RecordHealthCheck(ok bool) {
	if ok {
		i.ConsecutiveHealthFails = 0
		i.HealthScore += 5
		if i.HealthScore > 100 {
			i.HealthScore = 100
		}
		return
	}
	i.ConsecutiveHealthFails++
	i.HealthScore -= 20
	if i.HealthScore < 0 {
		i.HealthScore = 0
	}
}

// Unhealthy reports whether the consecutive-failure threshold is crossed.
func (i *Instance) Unhealthy() bool {
	return i.ConsecutiveHealthFails >= 3
}

// IdleFor reports how long the instance has sat without use.
func (i *Instance) IdleFor(now time.Time) time.Duration {
	return now.Sub(i.LastUsedAt)
}
