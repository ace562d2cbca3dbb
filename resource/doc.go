// Package resource governs the memory, IO bandwidth and transfer
// concurrency a process spends on sequences.
//
//	┌──────────────────────────────────────────────────────────┐
//	│                       Controller                         │
//	├──────────────────┬──────────────────┬────────────────────┤
//	│  Memory budget   │  IO rate limit   │  Transfer slots    │
//	│  (fail-fast)     │  (token bucket)  │  (semaphore)       │
//	├──────────────────┼──────────────────┼────────────────────┤
//	│  AcquireMemory   │  AcquireIO       │  AcquireTransfer   │
//	│  ReleaseMemory   │  RateLimited-    │  ReleaseTransfer   │
//	│  MemoryUsage     │  Writer/Reader   │                    │
//	└──────────────────┴──────────────────┴────────────────────┘
//
// In-memory sequences reserve arena growth against the memory budget and
// fail the append with ErrMemoryLimitExceeded instead of blocking. Multi-file
// sequences pass every shard write through AcquireIO. Export and Import hold
// one transfer slot per object in flight.
//
// One Controller may be shared by many sequences. All methods are safe for
// concurrent use, and a nil *Controller is a valid no-op controller.
package resource
