package worker

import "reflect"

// Subscriber registers its handlers on the dispatcher it was built with.
type Subscriber interface {
	RegisterHandlers()
}

// StartSubscribers registers audit and notification handlers. Nil
// subscribers are skipped.
func StartSubscribers(subscribers ...Subscriber) int {
	started := 0
	for _, s := range subscribers {
		if s == nil {
			continue
		}
		if v := reflect.ValueOf(s); v.Kind() == reflect.Pointer && v.IsNil() {
			continue
		}
		s.RegisterHandlers()
		started++
	}
	return started
}
