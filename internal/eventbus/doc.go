/*
Package eventbus provides an in-memory, typed pub/sub bus for the
orchestration engine (§9).

It is the single-producer-many-consumer channel called for in the design
notes: the state machine and lease manager publish typed Event values
(StateTransitioned, LeaseAcquired, LeaseConflict, HeartbeatFailed,
AgentCrashed, ModeChanged, ...), and the sync coordinator and agent
registry subscribe to react to them. Publish is non-blocking; slow or
absent subscribers never stall a publisher.

FailureRing separately tracks EventEmissionFailure occurrences in a
bounded circular buffer, since those never abort the transition that
triggered them but must remain inspectable.
*/
package eventbus
