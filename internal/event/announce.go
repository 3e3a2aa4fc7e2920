package event

// Announcers fans a processed event out to several announcers.
// Lets the pipeline feed both the websocket hub and the MQTT bridge
// through its single announcer slot.
type Announcers []Announcer

// AnnounceEvent delivers the event to every announcer in order.
func (a Announcers) AnnounceEvent(ev *ProcessedEvent) {
	for _, ann := range a {
		if ann != nil {
			ann.AnnounceEvent(ev)
		}
	}
}
