package views

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/GrainArc/CemDownloader/Transformer"
	"github.com/GrainArc/CemDownloader/cem"
	"github.com/GrainArc/CemDownloader/config"
	"github.com/GrainArc/CemDownloader/estado"
	"github.com/GrainArc/CemDownloader/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mholt/archiver/v3"
	"github.com/paulmach/orb/geojson"
	"gorm.io/datatypes"
)

// 任务状态枚举
type TaskStatus string
type UserController struct{}

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// WebSocket推送消息结构体
type ProgressMessage struct {
	Type       string      `json:"type"`
	Percentage int         `json:"percentage,omitempty"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Timestamp  int64       `json:"timestamp"`
}

// 客户端控制消息
type ClientMessage struct {
	Action string `json:"action"`
}

// 分要素下载请求参数结构体
type SplitRequest struct {
	LayerName  string          `json:"layer_name"`
	Resolution int             `json:"resolution" binding:"required"` // 地面分辨率（米）
	EPSG       string          `json:"epsg"`                          // 输入坐标系，shapefile可自动探测
	GeoJSON    json.RawMessage `json:"geojson,omitempty"`
	ShpPath    string          `json:"shp_path,omitempty"`
}

// 整州下载请求参数结构体
type EstadoRequest struct {
	Entidad    string `json:"entidad" binding:"required"` // 州名
	CVE        string `json:"cve" binding:"required"`     // 州编码，如09
	Resolution int    `json:"resolution" binding:"required"`
}

// 下载任务信息结构体
type DemTaskInfo struct {
	ID        string           `json:"id"`
	Status    TaskStatus       `json:"status"`
	TypeName  string           `json:"type_name"` // split/estado
	CreatedAt time.Time        `json:"created_at"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
	EndedAt   *time.Time       `json:"ended_at,omitempty"`
	Error     string           `json:"error,omitempty"`
	Layer     *cem.MemoryLayer `json:"-"`
	Split     *SplitRequest    `json:"-"`
	Estado    *EstadoRequest   `json:"-"`
	Context   context.Context    `json:"-"`
	Cancel    context.CancelFunc `json:"-"`
	mutex     sync.RWMutex       `json:"-"`
}

// 全局下载任务管理器
type DemTaskManager struct {
	tasks map[string]*DemTaskInfo
	mutex sync.RWMutex
}

var demTaskManager = &DemTaskManager{
	tasks: make(map[string]*DemTaskInfo),
}

// 添加任务
func (tm *DemTaskManager) AddTask(task *DemTaskInfo) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	tm.tasks[task.ID] = task
}

// 获取任务
func (tm *DemTaskManager) GetTask(taskID string) (*DemTaskInfo, bool) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	task, exists := tm.tasks[taskID]
	return task, exists
}

// 删除任务
func (tm *DemTaskManager) RemoveTask(taskID string) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	if task, exists := tm.tasks[taskID]; exists {
		if task.Cancel != nil {
			task.Cancel()
		}
		delete(tm.tasks, taskID)
	}
}

// 更新任务状态
func (task *DemTaskInfo) UpdateStatus(status TaskStatus) {
	task.mutex.Lock()
	defer task.mutex.Unlock()
	task.Status = status
	now := time.Now()

	switch status {
	case TaskStatusRunning:
		task.StartedAt = &now
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		task.EndedAt = &now
	}
}

// jsonWriter WebSocket连接的写出能力，*websocket.Conn天然满足
type jsonWriter interface {
	WriteJSON(v interface{}) error
}

// wsSink 把流水线进度转发到WebSocket连接
// Bytes按时间节流，避免小分块把连接打满；被节流掉的末次字节数
// 在下一个Step到来时补发，长度未知的下载也不会丢终态计数
type wsSink struct {
	ws        jsonWriter
	mu        sync.Mutex
	lastBytes time.Time
	received  int64
	total     int64
	dirty     bool
}

func bytesMessage(received, total int64) ProgressMessage {
	var message string
	if total > 0 {
		message = fmt.Sprintf("已下载 %s / %s", cem.HumanSize(float64(received)), cem.HumanSize(float64(total)))
	} else {
		message = fmt.Sprintf("已下载 %s", cem.HumanSize(float64(received)))
	}
	return ProgressMessage{
		Type:      "bytes",
		Message:   message,
		Data:      gin.H{"received": received, "total": total},
		Timestamp: time.Now().UnixMilli(),
	}
}

func (s *wsSink) Step(index, total int, message string) {
	percentage := 0
	if total > 0 {
		percentage = index * 100 / total
	}

	s.mu.Lock()
	var pending *ProgressMessage
	if s.dirty {
		msg := bytesMessage(s.received, s.total)
		pending = &msg
		s.dirty = false
	}
	s.mu.Unlock()

	if pending != nil {
		s.send(*pending)
	}
	s.send(ProgressMessage{
		Type:       "progress",
		Percentage: percentage,
		Message:    message,
		Timestamp:  time.Now().UnixMilli(),
	})
}

func (s *wsSink) Bytes(received, total int64) {
	s.mu.Lock()
	s.received, s.total = received, total
	done := total > 0 && received == total
	if time.Since(s.lastBytes) < 500*time.Millisecond && !done {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	s.lastBytes = time.Now()
	s.dirty = false
	s.mu.Unlock()

	s.send(bytesMessage(received, total))
}

func (s *wsSink) send(msg ProgressMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ws.WriteJSON(msg)
}

// sanitizeLayerName 图层名会拼进输出路径，路径分隔符与跳级序列一律替换掉
func sanitizeLayerName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	name = strings.ReplaceAll(name, "..", "_")
	name = strings.Trim(name, ". ")
	if name == "" {
		name = "layer"
	}
	return name
}

// buildLayer 把请求中的GeoJSON或shapefile统一解析为内存图层
func buildLayer(req *SplitRequest) (*cem.MemoryLayer, error) {
	name := sanitizeLayerName(req.LayerName)

	if req.ShpPath != "" {
		fc, detected, err := Transformer.ConvertSHPToGeoJSON(req.ShpPath)
		if err != nil {
			return nil, err
		}
		code := req.EPSG
		if code == "" {
			code = detected
		}
		if code == "" {
			return nil, fmt.Errorf("无法从shapefile推断坐标系，请显式指定epsg参数")
		}
		return &cem.MemoryLayer{LayerName: name, Code: code, FC: fc}, nil
	}

	if len(req.GeoJSON) > 0 {
		fc, err := geojson.UnmarshalFeatureCollection(req.GeoJSON)
		if err != nil {
			return nil, fmt.Errorf("解析GeoJSON失败: %w", err)
		}
		code := req.EPSG
		if code == "" {
			code = "4326"
		}
		return &cem.MemoryLayer{LayerName: name, Code: code, FC: fc}, nil
	}

	return nil, fmt.Errorf("geojson与shp_path必须提供其一")
}

// createRecord 写入任务记录，参数原样存档
func createRecord(taskID, typeName, layerName string, resolution int, args interface{}) {
	argsJSON, _ := json.Marshal(args)
	record := models.DemRecord{
		TaskID:     taskID,
		LayerName:  layerName,
		Resolution: resolution,
		Status:     0,
		TypeName:   typeName,
		Args:       datatypes.JSON(argsJSON),
	}
	models.DB.Create(&record)
}

func newFetcher() cem.CoverageFetcher {
	return cem.NewFetcher(time.Duration(config.HTTPTimeout) * time.Second)
}

// StartSplitDownload 创建分要素下载任务
// 分辨率与输入图层的校验都发生在任务创建时，不产生任何网络请求
func (uc *UserController) StartSplitDownload(c *gin.Context) {
	var req SplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	if !cem.IsValidResolution(req.Resolution) {
		c.JSON(400, gin.H{
			"error":   fmt.Sprintf("不支持的分辨率: %d", req.Resolution),
			"allowed": cem.ValidResolutions(),
		})
		return
	}

	layer, err := buildLayer(&req)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	taskID := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	task := &DemTaskInfo{
		ID:        taskID,
		Status:    TaskStatusPending,
		TypeName:  "split",
		CreatedAt: time.Now(),
		Layer:     layer,
		Split:     &req,
		Context:   ctx,
		Cancel:    cancel,
	}
	demTaskManager.AddTask(task)
	createRecord(taskID, "split", layer.Name(), req.Resolution, req)

	c.JSON(200, gin.H{
		"task_id": taskID,
		"status":  task.Status,
		"message": "下载任务已创建，请使用WebSocket连接开始执行",
		"ws_url":  fmt.Sprintf("/cem/Split/ws/%s", taskID),
	})
}

// SplitDownloadWebSocket 建立WebSocket连接并执行分要素下载
func (uc *UserController) SplitDownloadWebSocket(c *gin.Context) {
	taskID := c.Param("taskId")

	task, exists := demTaskManager.GetTask(taskID)
	if !exists {
		c.JSON(404, gin.H{"error": "任务不存在"})
		return
	}

	task.mutex.RLock()
	if task.Status != TaskStatusPending {
		task.mutex.RUnlock()
		c.JSON(400, gin.H{"error": "任务已经开始或已完成"})
		return
	}
	task.mutex.RUnlock()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(500, gin.H{"error": "WebSocket升级失败"})
		return
	}
	defer ws.Close()

	task.UpdateStatus(TaskStatusRunning)
	go watchCancel(ws, task)

	sink := &wsSink{ws: ws}
	downloader := &cem.Downloader{
		WCSBase:    config.WCSBase,
		CoverageID: config.CoverageID,
		WorkRoot:   config.Download,
		Fetcher:    newFetcher(),
		Clipper:    &cem.GdalWarpClipper{Binary: config.GdalWarp},
	}

	resultChan := make(chan *cem.BatchResult, 1)
	errorChan := make(chan error, 1)
	go func() {
		result, err := downloader.DownloadSplitPerPolygon(task.Context, task.Layer, task.Split.Resolution, sink)
		if err != nil {
			errorChan <- err
			return
		}
		resultChan <- result
	}()

	select {
	case <-task.Context.Done():
		task.UpdateStatus(TaskStatusCancelled)
		finishRecord(taskID, 2, nil, "任务已取消")
		sink.send(ProgressMessage{
			Type:      "cancelled",
			Message:   fmt.Sprintf("下载任务 %s 已被取消", taskID),
			Timestamp: time.Now().UnixMilli(),
		})

	case err := <-errorChan:
		task.UpdateStatus(TaskStatusFailed)
		task.mutex.Lock()
		task.Error = err.Error()
		task.mutex.Unlock()
		finishRecord(taskID, 2, nil, err.Error())
		sink.send(ProgressMessage{
			Type:      "error",
			Message:   "下载失败: " + err.Error(),
			Timestamp: time.Now().UnixMilli(),
		})

	case result := <-resultChan:
		task.UpdateStatus(TaskStatusCompleted)
		finishRecord(taskID, 1, result, "")
		outputs := make([]gin.H, 0, len(result.Items))
		for _, it := range result.Items {
			item := gin.H{"index": it.Index, "state": it.State}
			if it.OutputPath != "" {
				item["output"] = it.OutputPath
			}
			if it.Err != nil {
				item["error"] = it.Err.Error()
			}
			outputs = append(outputs, item)
		}
		sink.send(ProgressMessage{
			Type:       "completed",
			Percentage: 100,
			Message:    result.Summary(),
			Data: gin.H{
				"total":     result.Total,
				"succeeded": result.Succeeded,
				"failed":    result.Failed,
				"items":     outputs,
			},
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// watchCancel 监听客户端的取消消息，连接断开同样触发取消
func watchCancel(ws *websocket.Conn, task *DemTaskInfo) {
	for {
		var msg ClientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Action == "cancel" {
			fmt.Printf("收到任务 %s 的取消请求\n", task.ID)
			task.Cancel()
			return
		}
	}
}

// finishRecord 任务结束时落库：状态、统计与失败明细
func finishRecord(taskID string, status int, result *cem.BatchResult, errMsg string) {
	updates := map[string]interface{}{"status": status}
	if result != nil {
		updates["total"] = result.Total
		updates["succeeded"] = result.Succeeded
		updates["failed"] = result.Failed

		var failures []gin.H
		for _, it := range result.Items {
			if it.Err != nil {
				failures = append(failures, gin.H{"index": it.Index, "error": it.Err.Error()})
			}
		}
		if len(failures) > 0 {
			failJSON, _ := json.Marshal(failures)
			updates["failures"] = datatypes.JSON(failJSON)
		}
	}
	if errMsg != "" {
		failJSON, _ := json.Marshal([]gin.H{{"error": errMsg}})
		updates["failures"] = datatypes.JSON(failJSON)
	}
	models.DB.Model(&models.DemRecord{}).Where("task_id = ?", taskID).Updates(updates)
}

// GetSplitTaskStatus 查询任务状态
func (uc *UserController) GetSplitTaskStatus(c *gin.Context) {
	taskID := c.Param("taskId")

	task, exists := demTaskManager.GetTask(taskID)
	if !exists {
		// 进程重启后内存任务丢失，回退到数据库记录
		var record models.DemRecord
		if err := models.DB.Where("task_id = ?", taskID).First(&record).Error; err != nil {
			c.JSON(404, gin.H{"error": "任务不存在"})
			return
		}
		c.JSON(200, gin.H{"task_id": taskID, "record": record})
		return
	}

	task.mutex.RLock()
	defer task.mutex.RUnlock()

	response := gin.H{
		"task_id":    task.ID,
		"status":     task.Status,
		"type_name":  task.TypeName,
		"created_at": task.CreatedAt,
		"started_at": task.StartedAt,
		"ended_at":   task.EndedAt,
	}
	if task.Error != "" {
		response["error"] = task.Error
	}
	c.JSON(200, response)
}

// GetTaskRecord 查询任务的数据库记录，含统计与失败明细
func (uc *UserController) GetTaskRecord(c *gin.Context) {
	taskID := c.Param("taskId")

	var record models.DemRecord
	if err := models.DB.Where("task_id = ?", taskID).First(&record).Error; err != nil {
		c.JSON(404, gin.H{"error": "任务记录不存在"})
		return
	}
	c.JSON(200, gin.H{"code": 200, "data": record})
}

// DownloadSplitResult 将任务输出目录打包为ZIP并下载
func (uc *UserController) DownloadSplitResult(c *gin.Context) {
	taskID := c.Param("taskId")

	task, exists := demTaskManager.GetTask(taskID)
	if !exists || task.TypeName != "split" {
		c.JSON(404, gin.H{"error": "任务不存在"})
		return
	}

	task.mutex.RLock()
	status := task.Status
	task.mutex.RUnlock()
	if status != TaskStatusCompleted {
		c.JSON(400, gin.H{"error": "任务尚未完成"})
		return
	}

	workDir := filepath.Join(config.Download,
		fmt.Sprintf("wcs_%s_%dm", task.Layer.Name(), task.Split.Resolution))
	zipPath := workDir + ".zip"
	os.Remove(zipPath)
	if err := archiver.Archive([]string{workDir}, zipPath); err != nil {
		c.JSON(500, gin.H{"error": "打包失败: " + err.Error()})
		return
	}
	c.FileAttachment(zipPath, filepath.Base(zipPath))
}

// StartEstadoDownload 创建整州下载任务
func (uc *UserController) StartEstadoDownload(c *gin.Context) {
	var req EstadoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	if !cem.IsValidResolution(req.Resolution) {
		c.JSON(400, gin.H{
			"error":   fmt.Sprintf("不支持的分辨率: %d", req.Resolution),
			"allowed": cem.ValidResolutions(),
		})
		return
	}

	taskID := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	task := &DemTaskInfo{
		ID:        taskID,
		Status:    TaskStatusPending,
		TypeName:  "estado",
		CreatedAt: time.Now(),
		Estado:    &req,
		Context:   ctx,
		Cancel:    cancel,
	}
	demTaskManager.AddTask(task)
	createRecord(taskID, "estado", req.Entidad, req.Resolution, req)

	c.JSON(200, gin.H{
		"task_id": taskID,
		"status":  task.Status,
		"message": "整州下载任务已创建，请使用WebSocket连接开始执行",
		"ws_url":  fmt.Sprintf("/cem/Estado/ws/%s", taskID),
	})
}

// EstadoDownloadWebSocket 建立WebSocket连接并执行整州下载
func (uc *UserController) EstadoDownloadWebSocket(c *gin.Context) {
	taskID := c.Param("taskId")

	task, exists := demTaskManager.GetTask(taskID)
	if !exists {
		c.JSON(404, gin.H{"error": "任务不存在"})
		return
	}

	task.mutex.RLock()
	if task.Status != TaskStatusPending {
		task.mutex.RUnlock()
		c.JSON(400, gin.H{"error": "任务已经开始或已完成"})
		return
	}
	task.mutex.RUnlock()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(500, gin.H{"error": "WebSocket升级失败"})
		return
	}
	defer ws.Close()

	task.UpdateStatus(TaskStatusRunning)
	go watchCancel(ws, task)

	sink := &wsSink{ws: ws}
	req := task.Estado

	resultChan := make(chan *estado.Result, 1)
	errorChan := make(chan error, 1)
	go func() {
		result, err := estado.DownloadEstado(task.Context, newFetcher(),
			config.EstadoBase, config.EstadoBuild,
			req.Entidad, req.CVE, req.Resolution, config.Download, sink)
		if err != nil {
			errorChan <- err
			return
		}
		resultChan <- result
	}()

	select {
	case <-task.Context.Done():
		task.UpdateStatus(TaskStatusCancelled)
		finishRecord(taskID, 2, nil, "任务已取消")
		sink.send(ProgressMessage{
			Type:      "cancelled",
			Message:   fmt.Sprintf("整州下载任务 %s 已被取消", taskID),
			Timestamp: time.Now().UnixMilli(),
		})

	case err := <-errorChan:
		task.UpdateStatus(TaskStatusFailed)
		task.mutex.Lock()
		task.Error = err.Error()
		task.mutex.Unlock()
		finishRecord(taskID, 2, nil, err.Error())
		sink.send(ProgressMessage{
			Type:      "error",
			Message:   "整州下载失败: " + err.Error(),
			Timestamp: time.Now().UnixMilli(),
		})

	case result := <-resultChan:
		task.UpdateStatus(TaskStatusCompleted)
		models.DB.Model(&models.DemRecord{}).Where("task_id = ?", taskID).
			Updates(map[string]interface{}{
				"status":      1,
				"total":       len(result.Rasters),
				"succeeded":   len(result.Rasters),
				"output_path": result.ZipPath,
			})
		sink.send(ProgressMessage{
			Type:       "completed",
			Percentage: 100,
			Message:    fmt.Sprintf("整州数据下载完成，共 %d 个栅格文件", len(result.Rasters)),
			Data: gin.H{
				"zip":     result.ZipPath,
				"rasters": result.Rasters,
			},
			Timestamp: time.Now().UnixMilli(),
		})
	}
}
