package warroom

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/run-bigpig/warroom/internal/models"
)

// TranscriptLog 仅追加的战况落盘记录，一行一条 JSON 消息。
// 进程重启后可由 Load 重建完整战况，下一个消息 ID 取已见最大 ID + 1。
type TranscriptLog struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// OpenTranscript 打开（必要时创建）落盘记录文件
func OpenTranscript(path string) (*TranscriptLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &TranscriptLog{path: path, file: f}, nil
}

// Append 追加一条消息记录
func (t *TranscriptLog) Append(msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.file.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Load 读取全部已落盘消息，按文件顺序返回。
// 尾部写了一半的行（如断电残留）跳过，不视为错误。
func (t *TranscriptLog) Load() ([]models.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var messages []models.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			storeLog.Warn("skip broken transcript line: %v", err)
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// Close 关闭落盘文件
func (t *TranscriptLog) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}
