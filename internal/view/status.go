package view

import "documind/internal/model"

// CollectionStatus 是集合状态面板的数据。
type CollectionStatus struct {
	model.CollectionStats
	ShowProgress bool    `json:"showProgress"`
	Progress     float64 `json:"progress,omitempty"`
}

// Status 根据当前文档计算集合状态。只有存在 processing 文档时才展示进度，
// 进度为已结束（processed + failed）文档占全部文档的百分比。
func Status(docs []model.Document) CollectionStatus {
	var st CollectionStatus
	for _, d := range docs {
		st.Documents++
		st.Chunks += d.Chunks
		switch d.Status {
		case model.StatusFailed:
			st.Failed++
		case model.StatusProcessing:
			st.Processing++
		case model.StatusProcessed:
			st.Processed++
		}
	}
	if st.Processing > 0 {
		st.ShowProgress = true
		st.Progress = float64(st.Processed+st.Failed) / float64(st.Documents) * 100
	}
	return st
}
