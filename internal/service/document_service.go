package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"documind/internal/config"
	"documind/internal/events"
	"documind/internal/model"
	"documind/internal/pipeline"
	"documind/internal/store"
	"documind/internal/view"
	"documind/pkg/log"
	"documind/pkg/metrics"
	"documind/pkg/storage"
	"documind/pkg/tasks"
	"documind/pkg/tika"
)

const (
	ModeSync  = "sync"
	ModeAsync = "async"

	previewMaxLen = 10000
)

// UploadFile 是一次上传中的单个文件。Path 为文件夹上传时的相对路径。
type UploadFile struct {
	Name string
	Path string
	Type string
	Size int64
	Open func() (io.ReadCloser, error)
}

// UploadProgress 在每个文件处理完后上报。
type UploadProgress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
	File      string  `json:"file"`
}

// UploadOptions 控制一次上传。
type UploadOptions struct {
	Author   string
	Progress func(UploadProgress)
}

// UploadResult 是一次上传写入文档库的文档以及失败的文件。
type UploadResult struct {
	Documents []model.Document    `json:"documents"`
	Failures  []model.FileFailure `json:"failures,omitempty"`
}

// PreviewInfo 是文档已索引文本的预览。
type PreviewInfo struct {
	DocumentID uint64 `json:"documentId"`
	FileName   string `json:"fileName"`
	Content    string `json:"content"`
	FileSize   int64  `json:"fileSize"`
	Chunks     int    `json:"chunks"`
	Truncated  bool   `json:"truncated"`
}

// DownloadInfo 是文档原始文件的临时下载链接。
type DownloadInfo struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
	FileSize    int64  `json:"fileSize"`
}

// Presigner 由支持预签名链接的对象存储实现，例如 storage.MinioStore。
type Presigner interface {
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// DocumentService 定义了文档上传与管理相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, files []UploadFile, opts UploadOptions) (*UploadResult, error)
	ProcessTask(ctx context.Context, task tasks.IngestTask) error
	ListDocuments() []model.Document
	GetDocument(id uint64) (model.Document, error)
	Tree(exp *view.Expansion) model.LibraryTree
	Status() view.CollectionStatus
	Timeline(loc *time.Location) view.Timeline
	Activities() []model.Activity
	DeleteDocument(ctx context.Context, id uint64, confirmed bool) (model.Document, error)
	Preview(ctx context.Context, id uint64) (*PreviewInfo, error)
	DownloadURL(ctx context.Context, id uint64) (*DownloadInfo, error)
}

type documentService struct {
	store     *store.Store
	processor *pipeline.Processor
	objects   storage.ObjectStore
	queue     tasks.Queue
	models    ModelService
	cfg       config.IngestionConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。queue 只在 async 模式下使用。
func NewDocumentService(st *store.Store, processor *pipeline.Processor, objects storage.ObjectStore, queue tasks.Queue, models ModelService, cfg config.IngestionConfig) DocumentService {
	if cfg.Mode == "" {
		cfg.Mode = ModeSync
	}
	return &documentService{
		store:     st,
		processor: processor,
		objects:   objects,
		queue:     queue,
		models:    models,
		cfg:       cfg,
	}
}

// pendingFile 是已经读取并存入对象存储、等待写入文档库的文件。
type pendingFile struct {
	doc    model.Document
	chunks []model.Chunk
	err    error
}

// Upload 按输入顺序逐个处理文件，最后用一次 AddDocuments 写入整批文档。
// 部分文件失败时同时返回结果和 *model.IngestionError。
func (s *documentService) Upload(ctx context.Context, files []UploadFile, opts UploadOptions) (*UploadResult, error) {
	result := &UploadResult{Documents: []model.Document{}}
	if len(files) == 0 {
		return result, nil
	}

	modelID := s.models.CurrentEmbedding().ID
	async := s.cfg.Mode == ModeAsync && s.queue != nil
	pending := make([]pendingFile, 0, len(files))

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			s.discardObjects(pending)
			return nil, err
		}
		p := s.ingestFile(ctx, f, opts.Author, modelID, async)
		if p.err != nil && ctx.Err() != nil {
			s.discardObjects(append(pending, p))
			return nil, ctx.Err()
		}
		pending = append(pending, p)

		progress := UploadProgress{Completed: i + 1, Total: len(files), Percent: percent(i+1, len(files)), File: p.doc.Name}
		if opts.Progress != nil {
			opts.Progress(progress)
		}
		s.store.Bus().Publish(events.UploadProgress, progress)
	}

	docs := make([]model.Document, len(pending))
	for i, p := range pending {
		docs[i] = p.doc
	}
	added, err := s.store.AddDocuments(ctx, docs)
	if err != nil {
		s.discardObjects(pending)
		return nil, err
	}

	for i := range added {
		p := &pending[i]
		doc := added[i]
		switch {
		case p.err != nil:
			result.Failures = append(result.Failures, model.FileFailure{Name: doc.Name, Reason: p.err.Error()})
		case async:
			if err := s.enqueue(ctx, doc); err != nil {
				doc = s.markFailed(ctx, doc, err)
				result.Failures = append(result.Failures, model.FileFailure{Name: doc.Name, Reason: err.Error()})
			}
		default:
			if err := s.processor.Index(ctx, doc.ID, p.chunks); err != nil {
				doc = s.markFailed(ctx, doc, err)
				result.Failures = append(result.Failures, model.FileFailure{Name: doc.Name, Reason: err.Error()})
			} else {
				s.recordUploaded(ctx, doc)
			}
		}
		result.Documents = append(result.Documents, doc)
	}
	for _, f := range result.Failures {
		s.recordFailure(ctx, f.Name, f.Reason)
	}
	metrics.DocumentsTotal.Set(float64(s.store.Len()))

	if len(result.Failures) > 0 {
		return result, &model.IngestionError{Failures: result.Failures}
	}
	return result, nil
}

// ingestFile 读取文件并写入对象存储；同步模式下同时完成提取、切块与向量化。
func (s *documentService) ingestFile(ctx context.Context, f UploadFile, author, modelID string, async bool) pendingFile {
	name := path.Base(strings.ReplaceAll(f.Name, "\\", "/"))
	doc := model.Document{
		Name:           name,
		Path:           f.Path,
		Type:           f.Type,
		Size:           f.Size,
		Author:         author,
		Title:          strings.TrimSuffix(name, path.Ext(name)),
		EmbeddingModel: modelID,
		Status:         model.StatusProcessing,
	}
	if doc.Path == "" {
		doc.Path = name
	}
	if doc.Type == "" {
		doc.Type = detectType(name)
	}
	fail := func(err error) pendingFile {
		log.Warnf("[DocumentService] 文件 %s 入库失败: %v", name, err)
		doc.Status = model.StatusFailed
		doc.Chunks = 0
		doc.Error = err.Error()
		metrics.DocumentsIngestedTotal.WithLabelValues(string(model.StatusFailed)).Inc()
		return pendingFile{doc: doc, err: err}
	}

	if s.cfg.MaxFileSize > 0 && f.Size > s.cfg.MaxFileSize {
		return fail(fmt.Errorf("%w: file exceeds %d bytes", model.ErrValidation, s.cfg.MaxFileSize))
	}
	data, err := readAll(f, s.cfg.MaxFileSize)
	if err != nil {
		return fail(err)
	}
	if doc.Size == 0 {
		doc.Size = int64(len(data))
	}

	key := storage.NewObjectKey(name)
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), doc.Type); err != nil {
		return fail(fmt.Errorf("store object: %w", err))
	}
	doc.ObjectKey = key

	if async {
		return pendingFile{doc: doc}
	}

	chunks, err := s.processor.Prepare(ctx, pipeline.Input{Name: name, ContentType: doc.Type, Reader: bytes.NewReader(data)}, modelID)
	if err != nil {
		return fail(err)
	}
	doc.Status = model.StatusProcessed
	doc.Chunks = len(chunks)
	metrics.DocumentsIngestedTotal.WithLabelValues(string(model.StatusProcessed)).Inc()
	return pendingFile{doc: doc, chunks: chunks}
}

func readAll(f UploadFile, limit int64) ([]byte, error) {
	if f.Open == nil {
		return nil, fmt.Errorf("%w: file %s has no content", model.ErrValidation, f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", model.ErrValidation, limit)
	}
	return data, nil
}

func detectType(name string) string {
	if path.Ext(name) == "" {
		return model.UnknownType
	}
	mimeType := tika.DetectMimeType(name)
	if mimeType == "application/octet-stream" {
		return model.UnknownType
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return mimeType
}

func (s *documentService) enqueue(ctx context.Context, doc model.Document) error {
	task := tasks.IngestTask{
		DocumentID:     doc.ID,
		Name:           doc.Name,
		Path:           doc.Path,
		Type:           doc.Type,
		Size:           doc.Size,
		ObjectKey:      doc.ObjectKey,
		EmbeddingModel: doc.EmbeddingModel,
	}
	if err := s.queue.Publish(ctx, task); err != nil {
		return fmt.Errorf("publish ingest task: %w", err)
	}
	log.Infof("[DocumentService] 文档 %d 已加入处理队列", doc.ID)
	return nil
}

// ProcessTask 是异步模式下队列消费者的处理函数。流水线失败会把文档标记为 failed 并返回 nil，
// 只有文档库写入失败才返回错误以触发重试。
func (s *documentService) ProcessTask(ctx context.Context, task tasks.IngestTask) error {
	doc, ok := s.store.Document(task.DocumentID)
	if !ok {
		log.Warnf("[DocumentService] 任务对应的文档 %d 已不存在, 跳过", task.DocumentID)
		return nil
	}
	if doc.Status != model.StatusProcessing {
		return nil
	}

	rc, err := s.objects.Get(ctx, task.ObjectKey)
	if err != nil {
		return s.failTask(ctx, doc, fmt.Errorf("load object: %w", err))
	}
	defer rc.Close()

	modelID := task.EmbeddingModel
	if modelID == "" {
		modelID = s.models.CurrentEmbedding().ID
	}
	n, err := s.processor.Run(ctx, doc.ID, pipeline.Input{Name: task.Name, ContentType: task.Type, Reader: rc}, modelID)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return s.failTask(ctx, doc, err)
	}

	updated, err := s.store.UpdateDocument(ctx, doc.ID, func(d *model.Document) {
		d.Status = model.StatusProcessed
		d.Chunks = n
		d.EmbeddingModel = modelID
		d.Error = ""
	})
	if err != nil {
		if isNotFound(err) {
			// 处理期间文档被删除，清理刚写入的文本块
			if err := s.processor.Remove(ctx, doc.ID); err != nil {
				log.Errorf("[DocumentService] 清理已删除文档 %d 的文本块失败: %v", doc.ID, err)
			}
			return nil
		}
		return err
	}
	metrics.DocumentsIngestedTotal.WithLabelValues(string(model.StatusProcessed)).Inc()
	s.recordUploaded(ctx, updated)
	return nil
}

func (s *documentService) failTask(ctx context.Context, doc model.Document, cause error) error {
	log.Errorf("[DocumentService] 文档 %d 处理失败: %v", doc.ID, cause)
	if _, err := s.store.UpdateDocument(ctx, doc.ID, func(d *model.Document) {
		d.Status = model.StatusFailed
		d.Chunks = 0
		d.Error = cause.Error()
	}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	metrics.DocumentsIngestedTotal.WithLabelValues(string(model.StatusFailed)).Inc()
	s.recordFailure(ctx, doc.Name, cause.Error())
	return nil
}

func (s *documentService) markFailed(ctx context.Context, doc model.Document, cause error) model.Document {
	updated, err := s.store.UpdateDocument(ctx, doc.ID, func(d *model.Document) {
		d.Status = model.StatusFailed
		d.Chunks = 0
		d.Error = cause.Error()
	})
	if err != nil {
		log.Errorf("[DocumentService] 标记文档 %d 失败状态时出错: %v", doc.ID, err)
		return doc
	}
	return updated
}

func (s *documentService) recordUploaded(ctx context.Context, doc model.Document) {
	if _, err := s.store.AddActivity(ctx, model.Activity{Type: model.ActivityUpload, Message: "Uploaded " + doc.Name}); err != nil {
		log.Errorf("[DocumentService] 记录上传活动失败: %v", err)
	}
}

func (s *documentService) recordFailure(ctx context.Context, name, reason string) {
	msg := fmt.Sprintf("Failed to ingest %s: %s", name, reason)
	if _, err := s.store.AddActivity(ctx, model.Activity{Type: model.ActivityUpload, Message: msg}); err != nil {
		log.Errorf("[DocumentService] 记录失败活动出错: %v", err)
	}
}

// discardObjects 删除已写入对象存储但不会进入文档库的文件。
func (s *documentService) discardObjects(pending []pendingFile) {
	for _, p := range pending {
		if p.doc.ObjectKey == "" {
			continue
		}
		if err := s.objects.Delete(context.Background(), p.doc.ObjectKey); err != nil {
			log.Warnf("[DocumentService] 清理对象 %s 失败: %v", p.doc.ObjectKey, err)
		}
	}
}

func (s *documentService) ListDocuments() []model.Document {
	return s.store.Documents()
}

func (s *documentService) GetDocument(id uint64) (model.Document, error) {
	doc, ok := s.store.Document(id)
	if !ok {
		return model.Document{}, fmt.Errorf("document %d: %w", id, model.ErrNotFound)
	}
	return doc, nil
}

func (s *documentService) Tree(exp *view.Expansion) model.LibraryTree {
	return view.BuildTree(s.store.Documents(), exp)
}

func (s *documentService) Status() view.CollectionStatus {
	return view.Status(s.store.Documents())
}

func (s *documentService) Timeline(loc *time.Location) view.Timeline {
	return view.BuildTimeline(s.store.RecentActivities(view.TimelineSize), loc)
}

func (s *documentService) Activities() []model.Activity {
	return s.store.Activities()
}

// DeleteDocument 删除一个文档及其文本块和原始文件。未确认时返回 ErrConfirmationRequired，文档保持不变。
func (s *documentService) DeleteDocument(ctx context.Context, id uint64, confirmed bool) (model.Document, error) {
	doc, ok := s.store.Document(id)
	if !ok {
		return model.Document{}, fmt.Errorf("document %d: %w", id, model.ErrNotFound)
	}
	if !confirmed {
		return doc, model.ErrConfirmationRequired
	}

	removed, ok, err := s.store.DeleteDocument(ctx, id)
	if err != nil {
		return model.Document{}, err
	}
	if !ok {
		return model.Document{}, fmt.Errorf("document %d: %w", id, model.ErrNotFound)
	}

	if err := s.processor.Remove(ctx, id); err != nil {
		log.Errorf("[DocumentService] 删除文档 %d 的文本块失败: %v", id, err)
	}
	if removed.ObjectKey != "" {
		if err := s.objects.Delete(ctx, removed.ObjectKey); err != nil {
			// 记录错误，但文档记录已删除
			log.Warnf("[DocumentService] 删除对象 %s 失败: %v", removed.ObjectKey, err)
		}
	}
	if _, err := s.store.AddActivity(ctx, model.Activity{Type: model.ActivityDelete, Message: "Deleted " + removed.Name}); err != nil {
		log.Errorf("[DocumentService] 记录删除活动失败: %v", err)
	}
	metrics.DocumentsTotal.Set(float64(s.store.Len()))
	return removed, nil
}

// Preview 返回文档已索引的文本内容。
func (s *documentService) Preview(ctx context.Context, id uint64) (*PreviewInfo, error) {
	doc, err := s.GetDocument(id)
	if err != nil {
		return nil, err
	}
	chunks, err := s.processor.Chunks(ctx, id)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(c.Text)
	}
	content := []rune(b.String())
	info := &PreviewInfo{
		DocumentID: doc.ID,
		FileName:   doc.Name,
		FileSize:   doc.Size,
		Chunks:     len(chunks),
	}
	if len(content) > previewMaxLen {
		content = content[:previewMaxLen]
		info.Truncated = true
	}
	info.Content = string(content)
	return info, nil
}

// DownloadURL 生成原始文件的临时下载链接，有效期为 1 小时。
func (s *documentService) DownloadURL(ctx context.Context, id uint64) (*DownloadInfo, error) {
	doc, err := s.GetDocument(id)
	if err != nil {
		return nil, err
	}
	presigner, ok := s.objects.(Presigner)
	if !ok || doc.ObjectKey == "" {
		return nil, fmt.Errorf("%w: downloads need an object store with presigned urls", model.ErrServiceUnavailable)
	}
	url, err := presigner.PresignedURL(ctx, doc.ObjectKey, time.Hour)
	if err != nil {
		return nil, err
	}
	return &DownloadInfo{FileName: doc.Name, DownloadURL: url, FileSize: doc.Size}, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
