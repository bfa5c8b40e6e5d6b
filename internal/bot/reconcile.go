package bot

// Delta — результат сверки комнат: кого добавить, кого снять.
type Delta struct {
	Add    []string
	Remove []string
}

// Reconcile сравнивает желаемые, активные и живые комнаты.
// Add = live ∩ desired \ active. Remove = active \ live: комната,
// пропавшая из live, снимается даже если всё еще желаема —
// подключаться больше не к чему.
func Reconcile(desired, active, live []string) Delta {
	desiredSet := toSet(desired)
	activeSet := toSet(active)
	liveSet := toSet(live)

	var d Delta
	for _, room := range live {
		if !desiredSet[room] {
			continue
		}
		if activeSet[room] {
			continue
		}
		// дубликаты в live не должны породить два добавления
		if contains(d.Add, room) {
			continue
		}
		d.Add = append(d.Add, room)
	}
	for _, room := range active {
		if liveSet[room] {
			continue
		}
		if contains(d.Remove, room) {
			continue
		}
		d.Remove = append(d.Remove, room)
	}
	return d
}

func toSet(rooms []string) map[string]bool {
	set := make(map[string]bool, len(rooms))
	for _, r := range rooms {
		set[r] = true
	}
	return set
}

func contains(rooms []string, room string) bool {
	for _, r := range rooms {
		if r == room {
			return true
		}
	}
	return false
}
