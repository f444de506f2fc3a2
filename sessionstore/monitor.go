package sessionstore

// ReplicaHealth is a point-in-time snapshot of one replica's standing, for
// the monitoring surface.
type ReplicaHealth struct {
	ID       string
	Degraded bool
}

// Health reports the current health of every replica a Replicator tracks.
func (rp *Replicator) Health() []ReplicaHealth {
	out := make([]ReplicaHealth, 0, len(rp.replicas))
	for _, r := range rp.replicas {
		out = append(out, ReplicaHealth{ID: r.ID, Degraded: r.Degraded()})
	}
	return out
}
