// Package conversation implements the messaging core: thread resolution,
// conversation aggregation, and the service layer tying the message log,
// access policy, and realtime notifier together.
//
// # Thread Model
//
// A thread is the (store_id, user_id) pair, where user_id always names
// the customer side: an owner reply is stored against the customer it
// answers. Threads are derived from the message log, never persisted as
// their own records, so message state and conversation state cannot
// drift apart.
//
// # Resolver
//
// Resolve is a pure function mapping a message plus a viewer identity to
// the thread key and the viewer's relationship to it (owner vs customer
// framing, whether the viewer authored the message).
//
// # Aggregator
//
// Aggregate folds the viewer's slice of the log into one Summary per
// thread: latest message, unread count, counterpart identity. Ordering
// is (created_at desc, id asc), so the fold is deterministic and
// idempotent; re-running it with no intervening writes yields identical
// output.
//
// # Service
//
// The Service exposes the operations the view layer consumes:
//
//   - Send(ctx, req): validate, authorize, append, notify
//   - GetThread(ctx, storeID, userID, viewerID): one thread, oldest first
//   - GetConversations(ctx, viewerID): summaries, newest thread first
//   - MarkRead(ctx, messageID, viewerID): flip one read flag, notify
//   - Subscribe(ctx, storeID, userID, viewerID): change-event stream
//
// Every operation takes an explicit viewer ID; there is no ambient
// current-user state.
package conversation
