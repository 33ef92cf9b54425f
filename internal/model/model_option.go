package model

// ModelOption 是模型选择表中的一项。APIModel 是调用提供方接口时使用的模型名。
type ModelOption struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Provider    string `json:"provider"`
	APIModel    string `json:"-"`
}

// ModelSelection 描述当前选中的模型以及可选项。
type ModelSelection struct {
	Embedding        ModelOption   `json:"embedding"`
	Inference        ModelOption   `json:"inference"`
	EmbeddingOptions []ModelOption `json:"embeddingOptions"`
	InferenceOptions []ModelOption `json:"inferenceOptions"`
	ChangePolicy     string        `json:"changePolicy"`
}
