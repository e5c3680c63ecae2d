package qdrant

import (
	"fmt"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
	"github.com/qdrant/go-client/qdrant"
)

// Payload field names.
const (
	keyText        = "text"
	keyFilename    = "filename"
	keyPageNumber  = "page_number"
	keyChunkNumber = "chunk_number"
	keyPageHeader  = "page_header"
)

func distanceFor(metric storage.Metric) (qdrant.Distance, error) {
	switch metric {
	case storage.MetricCosine, "":
		return qdrant.Distance_Cosine, nil
	case storage.MetricDot:
		return qdrant.Distance_Dot, nil
	case storage.MetricEuclid:
		return qdrant.Distance_Euclid, nil
	default:
		return qdrant.Distance_UnknownDistance, fmt.Errorf("%w: %q", storage.ErrUnknownMetric, metric)
	}
}

func metricFor(distance qdrant.Distance) (storage.Metric, error) {
	switch distance {
	case qdrant.Distance_Cosine:
		return storage.MetricCosine, nil
	case qdrant.Distance_Dot:
		return storage.MetricDot, nil
	case qdrant.Distance_Euclid:
		return storage.MetricEuclid, nil
	default:
		return "", fmt.Errorf("%w: %s", storage.ErrUnknownMetric, distance)
	}
}

func payloadValues(p *core.Payload) map[string]*qdrant.Value {
	values := map[string]*qdrant.Value{
		keyText:        qdrant.NewValueString(p.Text),
		keyFilename:    qdrant.NewValueString(p.Filename),
		keyPageNumber:  qdrant.NewValueInt(int64(p.PageNumber)),
		keyChunkNumber: qdrant.NewValueInt(int64(p.ChunkNumber)),
	}
	if p.HasPageHeader() {
		values[keyPageHeader] = qdrant.NewValueString(p.PageHeader)
	}
	return values
}

func payloadFromValues(values map[string]*qdrant.Value) core.Payload {
	return core.Payload{
		Text:        values[keyText].GetStringValue(),
		Filename:    values[keyFilename].GetStringValue(),
		PageNumber:  int(values[keyPageNumber].GetIntegerValue()),
		ChunkNumber: int(values[keyChunkNumber].GetIntegerValue()),
		PageHeader:  values[keyPageHeader].GetStringValue(),
	}
}

func toPointStruct(point *core.IndexedPoint) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDNum(uint64(point.ID)),
		Vectors: qdrant.NewVectors(point.Vector...),
		Payload: payloadValues(&point.Payload),
	}
}
