// Package realtime carries chat, reaction and notification events between
// browsers and the services layer over websockets.
//
// A Hub tracks live connections and the rooms they joined. Every connection
// may join its personal room (user_<id>) and any number of project rooms
// (named by the decimal project id). Joining a room only grants visibility;
// write actions are authorized per event by the Gateway.
//
// Each Client runs a read pump that hands inbound envelopes to the Gateway
// one at a time and a write pump that drains a buffered send channel. A
// client whose buffer is full is dropped rather than allowed to stall a
// broadcast.
//
// When a Backplane is configured, room broadcasts are published to Redis and
// every instance, the publisher included, delivers them to its own
// connections. Without one, delivery is in-process.
//
// Wire format, both directions:
//
//	{"type": "sendMessage", "data": {"projectId": 7, "senderId": 1, "content": "hi"}}
package realtime
