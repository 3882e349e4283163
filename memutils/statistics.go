package memutils

import (
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

type Statistics struct {
	AllocationCount int
	AllocationBytes int
	ResidentCount   int
	ResidentBytes   int
}

func (s *Statistics) Clear() {
	s.AllocationCount = 0
	s.AllocationBytes = 0
	s.ResidentCount = 0
	s.ResidentBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.AllocationCount += other.AllocationCount
	s.AllocationBytes += other.AllocationBytes
	s.ResidentCount += other.ResidentCount
	s.ResidentBytes += other.ResidentBytes
}

// PrintJson writes the statistics as fields of an already-open json object
func (s *Statistics) PrintJson(obj *jwriter.ObjectState) {
	obj.Name("AllocationCount").Int(s.AllocationCount)
	obj.Name("AllocationBytes").Int(s.AllocationBytes)
	obj.Name("ResidentCount").Int(s.ResidentCount)
	obj.Name("ResidentBytes").Int(s.ResidentBytes)
}

type DetailedStatistics struct {
	Statistics
	EvictedCount      int
	EvictedBytes      int
	AllocationSizeMin int
	AllocationSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.EvictedCount = 0
	s.EvictedBytes = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
}

func (s *DetailedStatistics) AddEviction(size int) {
	s.EvictedCount++
	s.EvictedBytes += size
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationCount++
	s.AllocationBytes += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

func (s *DetailedStatistics) AddResident(size int) {
	s.ResidentCount++
	s.ResidentBytes += size
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.EvictedCount += other.EvictedCount
	s.EvictedBytes += other.EvictedBytes

	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}

	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}

func (s *DetailedStatistics) PrintJson(obj *jwriter.ObjectState) {
	s.Statistics.PrintJson(obj)
	obj.Name("EvictedCount").Int(s.EvictedCount)
	obj.Name("EvictedBytes").Int(s.EvictedBytes)
	if s.AllocationCount > 0 {
		obj.Name("AllocationSizeMin").Int(s.AllocationSizeMin)
		obj.Name("AllocationSizeMax").Int(s.AllocationSizeMax)
	}
}
