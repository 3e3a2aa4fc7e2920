// Package adapter provides the vendor-agnostic device integration layer
// for Passage Core.
//
// Physical access hardware (card readers, biometric scanners, door
// controllers) ships with wildly different wire protocols. The adapter
// layer hides that behind one contract so the rest of the platform
// never knows which vendor is bolted to the wall.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                       Adapter Factory                        │
//	│                                                              │
//	│  • enum-keyed constructor table (no string class lookup)     │
//	│  • bounded health probes with last-check-wins status map     │
//	│  • failover across a preference-ordered candidate list       │
//	│  • stub fallback: degradation never blocks the platform      │
//	└───────────────┬──────────────────────────┬───────────────────┘
//	                │                          │
//	                ▼                          ▼
//	   ┌────────────────────┐      ┌────────────────────┐
//	   │  hikvision.Adapter │      │    stub.Adapter    │
//	   │  (ISAPI over HTTP) │      │  (deterministic    │
//	   │                    │      │   in-memory sim)   │
//	   └────────────────────┘      └────────────────────┘
//
// # Key Types
//
//   - DeviceAdapter: the contract every vendor integration satisfies
//   - DeviceContext: device identity plus connection configuration,
//     passed into every call so adapters never re-resolve config
//   - Factory: selection, health tracking, and failover
//   - HealthStatus: the rolling per-type probe record (in-memory only)
//
// # Usage
//
//	factory, err := adapter.NewFactory(adapter.FactoryConfig{
//	    Preferred:     adapter.TypeHikvision,
//	    FailoverOrder: []adapter.Type{adapter.TypeHikvision, adapter.TypeStub},
//	    ProbeTimeout:  5 * time.Second,
//	}, constructors, log)
//	if err != nil {
//	    return err
//	}
//
//	a := factory.CreateAdapterWithFailover(ctx, nil)
//	result, err := a.SendCommand(ctx, devCtx, adapter.Command{
//	    Operation: adapter.OpUnlockDoor,
//	})
//
// # Thread Safety
//
// The Factory is safe for concurrent use; the health map is guarded by
// a read-write mutex. Individual adapters document their own guarantees,
// but all shipped implementations are concurrency-safe.
package adapter
