package scheduler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// TaskConf binds a named task to its priority and scheduling group.
type TaskConf struct {
	Name      string `mapstructure:"name"`
	Prio      uint32 `mapstructure:"prio"`
	GroupName string `mapstructure:"-"`
}

// GroupConf describes one scheduling group: its processor pool, CPU
// placement, and the tasks it owns.
type GroupConf struct {
	Name            string     `mapstructure:"name"`
	ProcessorNum    uint32     `mapstructure:"processor_num"`
	Affinity        string     `mapstructure:"affinity"`
	Cpuset          string     `mapstructure:"cpuset"`
	ProcessorPolicy string     `mapstructure:"processor_policy"`
	ProcessorPrio   int        `mapstructure:"processor_prio"`
	Tasks           []TaskConf `mapstructure:"tasks"`
}

// ClassicConf is the classic policy's group list.
type ClassicConf struct {
	Groups []GroupConf `mapstructure:"groups"`
}

// LoadClassicConf reads conf/<processGroup>.yaml. The file layout mirrors
// the original scheduler conf:
//
//	scheduler_conf:
//	  classic_conf:
//	    groups:
//	      - name: compute
//	        processor_num: 2
//	        affinity: range
//	        cpuset: "0-1"
//	        processor_policy: SCHED_OTHER
//	        processor_prio: 0
//	        tasks:
//	          - name: planner
//	            prio: 10
func LoadClassicConf(processGroup string) (ClassicConf, error) {
	v := viper.New()
	v.SetConfigName(processGroup)
	v.SetConfigType("yaml")
	v.AddConfigPath("conf")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return ClassicConf{}, err
	}
	var conf ClassicConf
	if err := v.UnmarshalKey("scheduler_conf.classic_conf", &conf); err != nil {
		return ClassicConf{}, err
	}
	if len(conf.Groups) == 0 {
		return ClassicConf{}, fmt.Errorf("scheduler: config %q has no classic groups", processGroup)
	}
	return conf, nil
}

// defaultClassicConf is the fallback when no config is readable: one default
// group with a two-processor pool.
func defaultClassicConf() ClassicConf {
	return ClassicConf{Groups: []GroupConf{{
		Name:            DefaultGroupName,
		ProcessorNum:    2,
		ProcessorPolicy: "SCHED_OTHER",
	}}}
}

// ParseCpuset expands a cpuset string such as "0-3,6" into CPU indices.
// Malformed fragments are skipped.
func ParseCpuset(s string) []int {
	var cpus []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			start, err1 := strconv.Atoi(lo)
			end, err2 := strconv.Atoi(hi)
			if err1 != nil || err2 != nil || start > end {
				continue
			}
			for c := start; c <= end; c++ {
				cpus = append(cpus, c)
			}
			continue
		}
		if c, err := strconv.Atoi(part); err == nil {
			cpus = append(cpus, c)
		}
	}
	return cpus
}
