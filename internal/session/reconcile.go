package session

// Reconcile merges the server's list with the cached list.
//
// Every server record is kept unchanged and in order. Cached records whose id
// the server does not report are appended in cache order with their status
// forced to Stopped. Neither input is modified.
func Reconcile(server, cached []Session) []Session {
	merged := make([]Session, 0, len(server)+len(cached))
	merged = append(merged, server...)

	known := make(map[string]struct{}, len(server))
	for _, s := range server {
		known[s.ID] = struct{}{}
	}

	for _, c := range cached {
		if _, ok := known[c.ID]; ok {
			continue
		}
		c.Status = StatusStopped
		merged = append(merged, c)
	}
	return merged
}

// Matches reports whether s forwards to target.
func Matches(s Session, target Target) bool {
	return s.Cluster == target.Cluster &&
		(s.Namespace == target.Namespace || s.ServiceNamespace == target.Namespace) &&
		(s.Pod == target.Name || s.Service == target.Name) &&
		s.TargetPort == target.PortString()
}

// FindMatch returns the session forwarding to target. When several match the
// last one in list order wins; Duplicates reports that situation.
func FindMatch(list []Session, target Target) (Session, bool) {
	var (
		match Session
		found bool
	)
	for _, s := range list {
		if Matches(s, target) {
			match = s
			found = true
		}
	}
	return match, found
}

// Duplicates returns the groups of sessions that share a target tuple.
func Duplicates(list []Session) map[TargetKey][]Session {
	groups := make(map[TargetKey][]Session)
	for _, s := range list {
		k := s.Key()
		groups[k] = append(groups[k], s)
	}
	for k, g := range groups {
		if len(g) < 2 {
			delete(groups, k)
		}
	}
	return groups
}

// Dedupe enforces unique ids. A later record for an id replaces the earlier
// one in the earlier record's position.
func Dedupe(list []Session) []Session {
	out := make([]Session, 0, len(list))
	index := make(map[string]int, len(list))
	for _, s := range list {
		if i, ok := index[s.ID]; ok {
			out[i] = s
			continue
		}
		index[s.ID] = len(out)
		out = append(out, s)
	}
	return out
}

// Upsert stores s in list, replacing every record with the same id or the
// same target tuple. The first replaced position is reused; otherwise s is
// appended.
func Upsert(list []Session, s Session) []Session {
	out := make([]Session, 0, len(list)+1)
	placed := false
	key := s.Key()
	for _, existing := range list {
		if existing.ID == s.ID || existing.Key() == key {
			if !placed {
				out = append(out, s)
				placed = true
			}
			continue
		}
		out = append(out, existing)
	}
	if !placed {
		out = append(out, s)
	}
	return out
}

// Remove drops the record with the given id.
func Remove(list []Session, id string) []Session {
	out := make([]Session, 0, len(list))
	for _, s := range list {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

// SetStatus returns a copy of list with the status of the record id changed.
func SetStatus(list []Session, id string, status Status) []Session {
	out := make([]Session, len(list))
	copy(out, list)
	for i := range out {
		if out[i].ID == id {
			out[i].Status = status
		}
	}
	return out
}

// FilterCluster returns the sessions belonging to cluster. An empty cluster returns all.
func FilterCluster(list []Session, cluster string) []Session {
	if cluster == "" {
		return list
	}
	out := make([]Session, 0, len(list))
	for _, s := range list {
		if s.Cluster == cluster {
			out = append(out, s)
		}
	}
	return out
}

// ActivePorts collects the local ports of running sessions.
func ActivePorts(list []Session) map[string]struct{} {
	ports := make(map[string]struct{})
	for _, s := range list {
		if s.IsRunning() && s.Port != "" {
			ports[s.Port] = struct{}{}
		}
	}
	return ports
}
