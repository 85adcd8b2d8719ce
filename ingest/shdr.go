package ingest

import (
	"strings"

	"github.com/mtconnect/agent/device"
	"github.com/mtconnect/agent/pipeline"
)

// conditionSubfields is the number of '|'-delimited fields a condition's
// VALUE carries on the wire: LEVEL|NATIVECODE|SEVERITY|QUALIFIER (§6).
const conditionSubfields = 4

// SplitLine turns one adapter line "TIMESTAMP|ITEM|VALUE|ITEM|VALUE..."
// into one pipeline.Entity per recognized data item, resolving ITEM
// against reg. Most items take a single '|'-delimited VALUE field; a
// condition's VALUE instead spans the following conditionSubfields
// fields, which are rejoined with '|' so pipeline.ShdrTokenMapper sees
// the same format it always has.
func SplitLine(line string, reg map[string]*device.DataItem) []*pipeline.Entity {
	fields := strings.Split(line, "|")
	if len(fields) < 3 {
		return nil
	}
	timestamp := fields[0]

	var entities []*pipeline.Entity
	for i := 1; i < len(fields); {
		name := fields[i]
		item, ok := reg[name]
		if !ok {
			i += 2
			continue
		}

		span := 1
		if item.Category == device.Condition {
			span = conditionSubfields
		}
		end := i + span
		if end >= len(fields) {
			end = len(fields) - 1
		}

		entities = append(entities, &pipeline.Entity{
			Item:         item,
			RawTimestamp: timestamp,
			RawValue:     strings.Join(fields[i+1:end+1], "|"),
		})
		i = end + 1
	}
	return entities
}
