// Package events fans out session change notifications to in-process
// subscribers.
//
// A Hub delivers every published Change to each live Subscriber through a
// buffered channel. Publishing never blocks: when a subscriber's buffer is
// full the change is dropped for that subscriber only and a warning is
// logged. Subscriptions end when Close is called or the context passed to
// Subscribe is done.
//
//	sub := hub.Subscribe(ctx)
//	defer sub.Close()
//	for ch := range sub.Receive() {
//	    fmt.Println(ch.Kind, len(ch.Sessions))
//	}
package events
