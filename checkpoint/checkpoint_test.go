package checkpoint_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/mtconnect/agent/checkpoint"
	"github.com/mtconnect/agent/device"
	"github.com/mtconnect/agent/observation"
)

func scalarObs(item *device.DataItem, v int64) *observation.Observation {
	return &observation.Observation{
		Item:      item,
		Timestamp: time.Now(),
		Payload:   observation.ScalarPayload{Value: observation.NewIntScalar(v)},
	}
}

func conditionObs(item *device.DataItem, level observation.Level, code string) *observation.Observation {
	return &observation.Observation{
		Item:      item,
		Timestamp: time.Now(),
		Payload:   observation.ConditionPayload{Level: level, NativeCode: code},
	}
}

var _ = Describe("Checkpoint scalar merge", func() {
	var item *device.DataItem

	BeforeEach(func() {
		h, _ := device.NewComponentHandle("c1")
		item = &device.DataItem{ID: "temp", Category: device.Sample, Component: h}
	})

	It("replaces the stored value on every Add", func() {
		cp := checkpoint.New()
		cp.Add(scalarObs(item, 1))
		cp.Add(scalarObs(item, 2))
		obs, ok := cp.Observation("temp")
		Expect(ok).To(BeTrue())
		Expect(obs.Payload.(observation.ScalarPayload).Value.Int).To(Equal(int64(2)))
	})
})

var _ = Describe("Checkpoint condition chain", func() {
	var item *device.DataItem

	BeforeEach(func() {
		h, _ := device.NewComponentHandle("c1")
		item = &device.DataItem{ID: "cond1", Category: device.Condition, Component: h}
	})

	It("starts a chain of one on the first FAULT", func() {
		cp := checkpoint.New()
		cp.Add(conditionObs(item, observation.Fault, "A1"))
		obs, _ := cp.Observation("cond1")
		chain := obs.Payload.(observation.ConditionPayload)
		Expect(chain.Level).To(Equal(observation.Fault))
		Expect(chain.NativeCode).To(Equal("A1"))
		Expect(chain.Prev).To(BeNil())
	})

	It("prepends a second distinct-code WARNING onto an existing FAULT", func() {
		cp := checkpoint.New()
		cp.Add(conditionObs(item, observation.Fault, "A1"))
		cp.Add(conditionObs(item, observation.Warning, "B2"))

		obs, _ := cp.Observation("cond1")
		head := obs.Payload.(observation.ConditionPayload)
		Expect(head.NativeCode).To(Equal("B2"))
		Expect(head.Prev).NotTo(BeNil())
		Expect(head.Prev.Payload.(observation.ConditionPayload).NativeCode).To(Equal("A1"))
	})

	It("replaces a matching code in place, preserving the rest of the chain", func() {
		cp := checkpoint.New()
		cp.Add(conditionObs(item, observation.Fault, "A1"))
		cp.Add(conditionObs(item, observation.Warning, "B2"))
		before, _ := cp.Observation("cond1")
		tail := before.Payload.(observation.ConditionPayload).Prev

		cp.Add(conditionObs(item, observation.Fault, "A1"))

		after, _ := cp.Observation("cond1")
		head := after.Payload.(observation.ConditionPayload)
		Expect(head.NativeCode).To(Equal("B2"))
		Expect(head.Level).To(Equal(observation.Warning))
		// the A1 entry keeps its place behind B2, but as the incoming node
		// rather than the one it replaced
		Expect(head.Prev).NotTo(BeNil())
		Expect(head.Prev.Payload.(observation.ConditionPayload).NativeCode).To(Equal("A1"))
		Expect(head.Prev).NotTo(BeIdenticalTo(tail))
	})

	It("clears a matching code from the chain via spliceChain removal", func() {
		cp := checkpoint.New()
		cp.Add(conditionObs(item, observation.Fault, "A1"))
		cp.Add(conditionObs(item, observation.Warning, "B2"))

		cp.Add(conditionObs(item, observation.Normal, "B2"))

		obs, _ := cp.Observation("cond1")
		head := obs.Payload.(observation.ConditionPayload)
		Expect(head.NativeCode).To(Equal("A1"))
		Expect(head.Prev).To(BeNil())
	})

	It("collapses to a single NORMAL when the last active condition clears", func() {
		cp := checkpoint.New()
		cp.Add(conditionObs(item, observation.Fault, "A1"))
		cp.Add(conditionObs(item, observation.Normal, "A1"))

		obs, _ := cp.Observation("cond1")
		head := obs.Payload.(observation.ConditionPayload)
		Expect(head.Level).To(Equal(observation.Normal))
		Expect(head.Prev).To(BeNil())
	})

	It("a codeless NORMAL clears the entire chain regardless of depth", func() {
		cp := checkpoint.New()
		cp.Add(conditionObs(item, observation.Fault, "A1"))
		cp.Add(conditionObs(item, observation.Warning, "B2"))
		cp.Add(conditionObs(item, observation.Normal, ""))

		obs, _ := cp.Observation("cond1")
		head := obs.Payload.(observation.ConditionPayload)
		Expect(head.Level).To(Equal(observation.Normal))
		Expect(head.Prev).To(BeNil())
	})

	It("UNAVAILABLE replaces the whole chain with a single UNAVAILABLE node", func() {
		cp := checkpoint.New()
		cp.Add(conditionObs(item, observation.Fault, "A1"))
		cp.Add(conditionObs(item, observation.Warning, "B2"))
		cp.Add(conditionObs(item, observation.Unavailable, ""))

		obs, _ := cp.Observation("cond1")
		head := obs.Payload.(observation.ConditionPayload)
		Expect(head.Level).To(Equal(observation.Unavailable))
		Expect(head.Prev).To(BeNil())
	})

	It("unrolls the chain oldest-first from Observations", func() {
		cp := checkpoint.New()
		cp.Add(conditionObs(item, observation.Fault, "A1"))
		cp.Add(conditionObs(item, observation.Warning, "B2"))

		obsList := cp.Observations()
		Expect(obsList).To(HaveLen(2))
		Expect(obsList[0].Payload.(observation.ConditionPayload).NativeCode).To(Equal("A1"))
		Expect(obsList[1].Payload.(observation.ConditionPayload).NativeCode).To(Equal("B2"))
	})
})

var _ = Describe("Checkpoint data set merge", func() {
	var item *device.DataItem

	BeforeEach(func() {
		h, _ := device.NewComponentHandle("c1")
		item = &device.DataItem{ID: "settings", Category: device.Event, Representation: device.DataSet, Component: h}
	})

	dsObs := func(entries ...observation.Entry) *observation.Observation {
		return &observation.Observation{
			Item:      item,
			Timestamp: time.Now(),
			Payload:   observation.DataSetPayload{Set: observation.DataSet{Entries: entries}},
		}
	}

	It("unions new keys into the stored set", func() {
		cp := checkpoint.New()
		cp.Add(dsObs(observation.Entry{Key: "a", Value: observation.NewIntScalar(1)}))
		cp.Add(dsObs(observation.Entry{Key: "b", Value: observation.NewIntScalar(2)}))

		obs, _ := cp.Observation("settings")
		set := obs.Payload.(observation.DataSetPayload).Set
		Expect(set.Entries).To(HaveLen(2))
	})

	It("removes a key marked Removed", func() {
		cp := checkpoint.New()
		cp.Add(dsObs(observation.Entry{Key: "a", Value: observation.NewIntScalar(1)}))
		cp.Add(dsObs(observation.Entry{Key: "a", Removed: true}))

		obs, _ := cp.Observation("settings")
		set := obs.Payload.(observation.DataSetPayload).Set
		Expect(set.Entries).To(BeEmpty())
	})

	It("replaces wholesale on a reset trigger", func() {
		cp := checkpoint.New()
		cp.Add(dsObs(observation.Entry{Key: "a", Value: observation.NewIntScalar(1)}))
		reset := &observation.Observation{
			Item:      item,
			Timestamp: time.Now(),
			Payload: observation.DataSetPayload{
				Set:            observation.DataSet{Entries: []observation.Entry{{Key: "b", Value: observation.NewIntScalar(9)}}},
				ResetTriggered: "VALUE",
			},
		}
		cp.Add(reset)

		obs, _ := cp.Observation("settings")
		set := obs.Payload.(observation.DataSetPayload).Set
		Expect(set.Entries).To(HaveLen(1))
		Expect(set.Entries[0].Key).To(Equal("b"))
	})

	It("reports DataSetUnchanged true when incoming entries all match", func() {
		cp := checkpoint.New()
		cp.Add(dsObs(observation.Entry{Key: "a", Value: observation.NewIntScalar(1)}))

		same := dsObs(observation.Entry{Key: "a", Value: observation.NewIntScalar(1)})
		Expect(cp.DataSetUnchanged(same)).To(BeTrue())

		changed := dsObs(observation.Entry{Key: "a", Value: observation.NewIntScalar(2)})
		Expect(cp.DataSetUnchanged(changed)).To(BeFalse())
	})
})

var _ = Describe("Checkpoint filtering", func() {
	It("NewFiltered only tracks ids in the filter set", func() {
		h, _ := device.NewComponentHandle("c1")
		a := &device.DataItem{ID: "a", Component: h}
		b := &device.DataItem{ID: "b", Component: h}

		cp := checkpoint.NewFiltered(map[string]struct{}{"a": {}})
		cp.Add(scalarObs(a, 1))
		cp.Add(scalarObs(b, 2))

		_, ok := cp.Observation("a")
		Expect(ok).To(BeTrue())
		_, ok = cp.Observation("b")
		Expect(ok).To(BeFalse())
	})

	It("Filter with an empty set clears filtering entirely", func() {
		h, _ := device.NewComponentHandle("c1")
		a := &device.DataItem{ID: "a", Component: h}

		cp := checkpoint.NewFiltered(map[string]struct{}{"a": {}})
		cp.Add(scalarObs(a, 1))
		cp.Filter(nil)

		b := &device.DataItem{ID: "b", Component: h}
		cp.Add(scalarObs(b, 2))
		_, ok := cp.Observation("b")
		Expect(ok).To(BeTrue())
	})

	It("Copy restricts to the given filter without mutating the source", func() {
		h, _ := device.NewComponentHandle("c1")
		a := &device.DataItem{ID: "a", Component: h}
		b := &device.DataItem{ID: "b", Component: h}

		cp := checkpoint.New()
		cp.Add(scalarObs(a, 1))
		cp.Add(scalarObs(b, 2))

		restricted := cp.Copy(map[string]struct{}{"a": {}})
		_, ok := restricted.Observation("a")
		Expect(ok).To(BeTrue())
		_, ok = restricted.Observation("b")
		Expect(ok).To(BeFalse())

		// source untouched
		_, ok = cp.Observation("b")
		Expect(ok).To(BeTrue())
	})
})

var _ = Describe("Checkpoint orphan handling", func() {
	It("skips an observation whose component has been torn down", func() {
		h, teardown := device.NewComponentHandle("c1")
		item := &device.DataItem{ID: "temp", Component: h}

		cp := checkpoint.New()
		cp.Add(scalarObs(item, 1))
		teardown()

		Expect(cp.Observations()).To(BeEmpty())
		// direct lookup still works; only Observations() filters orphans
		_, ok := cp.Observation("temp")
		Expect(ok).To(BeTrue())
	})
})
