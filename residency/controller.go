package residency

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	cerrors "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/gfxcore/config"
	"github.com/vkngwrapper/gfxcore/internal/utils"
	"github.com/vkngwrapper/gfxcore/memory"
	"github.com/vkngwrapper/gfxcore/memutils"
	"golang.org/x/exp/slog"
)

// Controller tracks residency for one OS context. Allocations that are resident but not referenced by
// in-flight work sit in the trim candidate list, ordered from least to most recently released, and are
// the first evicted when the kernel driver asks the context to give memory back.
//
// Two locks guard the controller. The general lock serializes submissions making allocations resident.
// The trim callback lock guards only the trim candidate list and is a spin lock, so the memory pressure
// callback never waits behind a submission holding the general lock.
type Controller struct {
	id          uuid.UUID
	osContextID uint32
	osInterface OsInterface
	logger      *slog.Logger

	compactionThreshold int32

	lock             sync.Mutex
	trimCallbackLock utils.SpinLock

	trimCandidateList   []*memory.GraphicsAllocation
	trimCandidatesCount int
	lastTrimFenceValue  uint64

	evictions memutils.DetailedStatistics
}

var (
	_ memory.ResidencyTracker = (*Controller)(nil)
	_ memutils.SelfChecker    = (*Controller)(nil)
)

func NewController(osContextID uint32, osInterface OsInterface, flags config.Flags, logger *slog.Logger) *Controller {
	if osContextID >= memory.MaxOsContexts {
		panic(fmt.Sprintf("os context id %d exceeds the maximum of %d", osContextID, memory.MaxOsContexts))
	}

	controller := &Controller{
		id:                  uuid.New(),
		osContextID:         osContextID,
		osInterface:         osInterface,
		logger:              config.DiscardLogger(logger),
		compactionThreshold: flags.ResidencyCompactionThreshold,
	}
	controller.evictions.Clear()
	return controller
}

func (c *Controller) ID() uuid.UUID {
	return c.id
}

func (c *Controller) OsContextID() uint32 {
	return c.osContextID
}

func (c *Controller) AcquireLock() {
	c.lock.Lock()
}

func (c *Controller) ReleaseLock() {
	c.lock.Unlock()
}

func (c *Controller) AcquireTrimCallbackLock() {
	c.trimCallbackLock.Lock()
}

func (c *Controller) ReleaseTrimCallbackLock() {
	c.trimCallbackLock.Unlock()
}

func (c *Controller) LastTrimFenceValue() uint64 {
	return c.lastTrimFenceValue
}

func (c *Controller) SetLastTrimFenceValue(value uint64) {
	c.lastTrimFenceValue = value
}

// TrimCandidateList returns the list including holes left by removals. The caller must hold the trim
// callback lock for as long as it uses the result.
func (c *Controller) TrimCandidateList() []*memory.GraphicsAllocation {
	return c.trimCandidateList
}

func (c *Controller) TrimCandidatesCount() int {
	return c.trimCandidatesCount
}

// GetTrimCandidateHead returns the least recently released candidate, skipping holes, or nil if the
// list is empty
func (c *Controller) GetTrimCandidateHead() *memory.GraphicsAllocation {
	for _, alloc := range c.trimCandidateList {
		if alloc != nil {
			return alloc
		}
	}
	return nil
}

// AddToTrimCandidateList appends alloc unless it is already in the list. Membership is read from the
// allocation's stored position, never by searching the list.
func (c *Controller) AddToTrimCandidateList(alloc *memory.GraphicsAllocation) {
	residency := alloc.ResidencyData(c.osContextID)
	if residency.TrimCandidateListPosition != memory.TrimListUnusedPosition {
		return
	}

	residency.TrimCandidateListPosition = len(c.trimCandidateList)
	c.trimCandidateList = append(c.trimCandidateList, alloc)
	c.trimCandidatesCount++

	c.checkTrimCandidateCount()
}

// RemoveFromTrimCandidateList takes alloc out of the list. With compact set the tail is shifted down
// immediately; otherwise the slot becomes a hole for a later CompactTrimCandidateList. Trailing holes
// are always dropped.
func (c *Controller) RemoveFromTrimCandidateList(alloc *memory.GraphicsAllocation, compact bool) {
	residency := alloc.ResidencyData(c.osContextID)
	position := residency.TrimCandidateListPosition
	if position < 0 || position >= len(c.trimCandidateList) || c.trimCandidateList[position] != alloc {
		panic(fmt.Sprintf("allocation %d is not at trim candidate list position %d of os context %d", alloc.Handle(), position, c.osContextID))
	}

	c.trimCandidatesCount--
	residency.TrimCandidateListPosition = memory.TrimListUnusedPosition

	if compact {
		copy(c.trimCandidateList[position:], c.trimCandidateList[position+1:])
		c.trimCandidateList[len(c.trimCandidateList)-1] = nil
		c.trimCandidateList = c.trimCandidateList[:len(c.trimCandidateList)-1]
		for i := position; i < len(c.trimCandidateList); i++ {
			if c.trimCandidateList[i] != nil {
				c.trimCandidateList[i].ResidencyData(c.osContextID).TrimCandidateListPosition = i
			}
		}
	} else {
		c.trimCandidateList[position] = nil
	}

	c.dropTrailingHoles()
	c.checkTrimCandidateCount()
}

// RemoveFromTrimCandidateListIfUsed removes alloc if it is currently in the list
func (c *Controller) RemoveFromTrimCandidateListIfUsed(alloc *memory.GraphicsAllocation, compact bool) {
	if alloc.ResidencyData(c.osContextID).TrimCandidateListPosition == memory.TrimListUnusedPosition {
		return
	}
	c.RemoveFromTrimCandidateList(alloc, compact)
}

// ReleaseAllocation drops alloc from the trim candidate list before its memory manager frees it
func (c *Controller) ReleaseAllocation(alloc *memory.GraphicsAllocation) {
	c.AcquireTrimCallbackLock()
	defer c.ReleaseTrimCallbackLock()

	c.RemoveFromTrimCandidateListIfUsed(alloc, true)
	alloc.ResidencyData(c.osContextID).Resident = false
}

func (c *Controller) dropTrailingHoles() {
	end := len(c.trimCandidateList)
	for end > 0 && c.trimCandidateList[end-1] == nil {
		end--
	}

	if end == 0 {
		c.trimCandidateList = c.trimCandidateList[:0]
		return
	}
	c.trimCandidateList = c.trimCandidateList[:end]
}

// CheckTrimCandidateListCompaction reports whether enough of the list is holes that a compaction
// should run. By default that is half of the list.
func (c *Controller) CheckTrimCandidateListCompaction() bool {
	holes := len(c.trimCandidateList) - c.trimCandidatesCount
	if holes == 0 {
		return false
	}

	if c.compactionThreshold >= 0 {
		return holes*100 >= int(c.compactionThreshold)*len(c.trimCandidateList)
	}
	return 2*c.trimCandidatesCount <= len(c.trimCandidateList)
}

// CompactTrimCandidateList removes every hole, keeping candidates in order and updating their stored
// positions
func (c *Controller) CompactTrimCandidateList() {
	if len(c.trimCandidateList) == c.trimCandidatesCount {
		return
	}

	freePosition := 0
	for i, alloc := range c.trimCandidateList {
		if alloc == nil {
			continue
		}

		if i != freePosition {
			c.trimCandidateList[freePosition] = alloc
			alloc.ResidencyData(c.osContextID).TrimCandidateListPosition = freePosition
		}
		freePosition++
	}

	for i := freePosition; i < len(c.trimCandidateList); i++ {
		c.trimCandidateList[i] = nil
	}
	c.trimCandidateList = c.trimCandidateList[:freePosition]

	c.checkTrimCandidateCount()
}

// CheckTrimCandidateCount verifies the live candidate count against the list when built with the
// debug_gfx_core tag
func (c *Controller) CheckTrimCandidateCount() {
	c.checkTrimCandidateCount()
}

func (c *Controller) checkTrimCandidateCount() {
	memutils.DebugValidate(c)
}

func (c *Controller) Validate() error {
	count := 0
	for i, alloc := range c.trimCandidateList {
		if alloc == nil {
			continue
		}

		count++
		position := alloc.ResidencyData(c.osContextID).TrimCandidateListPosition
		if position != i {
			return errors.Errorf("allocation %d is at trim candidate list index %d but records position %d", alloc.Handle(), i, position)
		}
	}

	if count != c.trimCandidatesCount {
		return errors.Errorf("the trim candidate list holds %d allocations, but the controller counts %d", count, c.trimCandidatesCount)
	}

	if len(c.trimCandidateList) > 0 && c.trimCandidateList[len(c.trimCandidateList)-1] == nil {
		return errors.New("there should not be lingering holes at the end of the trim candidate list")
	}

	return nil
}

// MakeResident makes allocations resident for work that completes at fence. Allocations already
// resident only have their fence updated. Every allocation first leaves the trim candidate list, since
// in-flight work now references it, so a concurrent trim can no longer evict it.
func (c *Controller) MakeResident(allocations []*memory.GraphicsAllocation, fence uint64) error {
	c.AcquireLock()
	defer c.ReleaseLock()

	c.AcquireTrimCallbackLock()
	for _, alloc := range allocations {
		c.RemoveFromTrimCandidateListIfUsed(alloc, false)
	}
	if c.CheckTrimCandidateListCompaction() {
		c.CompactTrimCandidateList()
	}
	c.ReleaseTrimCallbackLock()

	var toMakeResident []*memory.GraphicsAllocation
	for _, alloc := range allocations {
		residency := alloc.ResidencyData(c.osContextID)
		residency.LastFenceValue = fence
		if !residency.Resident {
			toMakeResident = append(toMakeResident, alloc)
		}
	}

	if len(toMakeResident) == 0 {
		return nil
	}

	err := c.osInterface.MakeResident(toMakeResident)
	if err != nil {
		return cerrors.Wrapf(err, "failed to make %d allocations resident on os context %d", len(toMakeResident), c.osContextID)
	}

	for _, alloc := range toMakeResident {
		alloc.ResidencyData(c.osContextID).Resident = true
	}

	return nil
}

// MakeNonResident releases allocations from the current submission. They stay resident but become
// candidates for trimming.
func (c *Controller) MakeNonResident(allocations []*memory.GraphicsAllocation) {
	c.AcquireTrimCallbackLock()
	defer c.ReleaseTrimCallbackLock()

	for _, alloc := range allocations {
		if alloc.ResidencyData(c.osContextID).Resident {
			c.AddToTrimCandidateList(alloc)
		}
	}
}

// TrimResidency is the memory pressure callback. It evicts candidates whose last use completed at or
// before completedFence, least recently released first, until at least budget bytes are freed or no
// candidate remains. Candidates still referenced by in-flight work are skipped. It returns the number
// of bytes evicted.
func (c *Controller) TrimResidency(budget int, completedFence uint64) (int, error) {
	c.AcquireTrimCallbackLock()
	defer c.ReleaseTrimCallbackLock()

	return c.trim(completedFence, func(freed int) bool {
		return freed >= budget
	})
}

// PeriodicTrim evicts every candidate whose last use completed at or before the fence recorded by the
// previous periodic trim, then records currentFence for the next one
func (c *Controller) PeriodicTrim(currentFence uint64) (int, error) {
	c.AcquireTrimCallbackLock()
	defer c.ReleaseTrimCallbackLock()

	freed, err := c.trim(c.lastTrimFenceValue, func(int) bool {
		return false
	})
	if err != nil {
		return freed, err
	}

	c.lastTrimFenceValue = currentFence
	return freed, nil
}

func (c *Controller) trim(completedFence uint64, done func(freed int) bool) (int, error) {
	var toEvict []*memory.GraphicsAllocation
	freed := 0

	for _, alloc := range c.trimCandidateList {
		if done(freed) {
			break
		}
		if alloc == nil {
			continue
		}

		residency := alloc.ResidencyData(c.osContextID)
		if residency.LastFenceValue > completedFence {
			continue
		}

		toEvict = append(toEvict, alloc)
		freed += alloc.Size()
	}

	if len(toEvict) == 0 {
		return 0, nil
	}

	err := c.osInterface.Evict(toEvict)
	if err != nil {
		return 0, cerrors.Wrapf(err, "failed to evict %d allocations from os context %d", len(toEvict), c.osContextID)
	}

	for _, alloc := range toEvict {
		alloc.ResidencyData(c.osContextID).Resident = false
		c.RemoveFromTrimCandidateList(alloc, false)
		c.evictions.AddEviction(alloc.Size())
	}

	if len(c.trimCandidateList) > c.trimCandidatesCount {
		c.CompactTrimCandidateList()
	}

	if completedFence > c.lastTrimFenceValue {
		c.lastTrimFenceValue = completedFence
	}

	c.logger.LogAttrs(context.Background(), slog.LevelDebug, "trimmed residency",
		slog.String("controller", c.id.String()),
		slog.Int("osContextId", int(c.osContextID)),
		slog.Int("evictedCount", len(toEvict)),
		slog.Int("evictedBytes", freed),
	)

	return freed, nil
}

// CalculateStatistics reports the trim candidates as resident allocations along with every eviction
// performed by the controller
func (c *Controller) CalculateStatistics(stats *memutils.DetailedStatistics) {
	c.AcquireTrimCallbackLock()
	defer c.ReleaseTrimCallbackLock()

	stats.Clear()
	stats.EvictedCount = c.evictions.EvictedCount
	stats.EvictedBytes = c.evictions.EvictedBytes
	for _, alloc := range c.trimCandidateList {
		if alloc == nil {
			continue
		}
		stats.AddAllocation(alloc.Size())
		stats.AddResident(alloc.Size())
	}
}

// BuildStatsString returns a json document describing the trim candidate list
func (c *Controller) BuildStatsString() string {
	var stats memutils.DetailedStatistics
	c.CalculateStatistics(&stats)

	c.AcquireTrimCallbackLock()
	listSize := len(c.trimCandidateList)
	count := c.trimCandidatesCount
	lastTrimFence := c.lastTrimFenceValue
	c.ReleaseTrimCallbackLock()

	writer := jwriter.NewWriter()
	root := writer.Object()
	root.Name("Controller").String(c.id.String())
	root.Name("OsContextId").Int(int(c.osContextID))
	root.Name("TrimCandidatesCount").Int(count)
	root.Name("TrimCandidateListSize").Int(listSize)
	root.Name("Holes").Int(listSize - count)
	root.Name("LastTrimFenceValue").String(strconv.FormatUint(lastTrimFence, 10))

	candidatesObj := root.Name("Candidates").Object()
	stats.PrintJson(&candidatesObj)
	candidatesObj.End()

	root.End()
	return string(writer.Bytes())
}
