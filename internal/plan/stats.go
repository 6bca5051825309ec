package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// StageStats is the MapReduce summary of one executed stage.
type StageStats struct {
	Stage     string `yaml:"stage" json:"stage"`
	Mappers   int    `yaml:"mappers" json:"mappers"`
	Reducers  int    `yaml:"reducers" json:"reducers"`
	CPUMillis int64  `yaml:"cpuMillis" json:"cpuMillis"`
	HDFSRead  int64  `yaml:"hdfsRead" json:"hdfsRead"`
	HDFSWrite int64  `yaml:"hdfsWrite" json:"hdfsWrite"`
	Success   bool   `yaml:"success" json:"success"`
}

// String renders the stage the way the engine prints it at the end of a query.
func (s StageStats) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Map: %d ", s.Mappers)
	if s.Reducers > 0 {
		fmt.Fprintf(&sb, " Reduce: %d ", s.Reducers)
	}
	if s.CPUMillis > 0 {
		fmt.Fprintf(&sb, " Cumulative CPU: %s sec ", seconds(s.CPUMillis))
	}
	fmt.Fprintf(&sb, " HDFS Read: %d HDFS Write: %d", s.HDFSRead, s.HDFSWrite)
	if s.Success {
		sb.WriteString(" SUCCESS")
	} else {
		sb.WriteString(" FAIL")
	}
	return sb.String()
}

// seconds prints msec/1000 with the shortest decimal form, keeping at least
// one fractional digit ("1.5", "3.0").
func seconds(msec int64) string {
	s := strconv.FormatFloat(float64(msec)/1000, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// TotalCPUMillis sums the CPU time of all stages.
func (p *QueryPlan) TotalCPUMillis() int64 {
	var total int64
	for _, s := range p.Stages {
		total += s.CPUMillis
	}
	return total
}

// FormatMillis renders a duration as "[D days ][H hours ][M minutes ][S seconds ]MS msec",
// leaving out the leading units that are zero.
func FormatMillis(msec int64) string {
	day, hour, minute, second := int64(-1), int64(-1), int64(-1), int64(-1)
	ms := msec % 1000
	left := msec / 1000
	if left > 0 {
		second = left % 60
		left /= 60
		if left > 0 {
			minute = left % 60
			left /= 60
			if left > 0 {
				hour = left % 24
				day = left / 24
			}
		}
	}

	var sb strings.Builder
	if day != -1 {
		fmt.Fprintf(&sb, "%d days ", day)
	}
	if hour != -1 {
		fmt.Fprintf(&sb, "%d hours ", hour)
	}
	if minute != -1 {
		fmt.Fprintf(&sb, "%d minutes ", minute)
	}
	if second != -1 {
		fmt.Fprintf(&sb, "%d seconds ", second)
	}
	fmt.Fprintf(&sb, "%d msec", ms)
	return sb.String()
}
