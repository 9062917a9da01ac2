// internal/di/container.go
package di

import (
	"fmt"
	"sort"
	"sync"
)

// 服务名称
const (
	ServiceConfig    = "config"
	ServiceLogger    = "logger"
	ServiceMetrics   = "metrics"
	ServiceDocuments = "documents"
	ServiceSessions  = "sessions"
	ServicePreviews  = "previews"
	ServiceExport    = "export"
	ServiceRender    = "render"
	ServiceEvents    = "events"
)

// Container 是一个简单的依赖注入容器
type Container struct {
	services map[string]interface{}
	mutex    sync.RWMutex
}

// 全局容器实例（单例模式）
var (
	globalContainer *Container
	once            sync.Once
)

// NewContainer 创建一个新的依赖注入容器
func NewContainer() *Container {
	return &Container{services: make(map[string]interface{})}
}

// GetContainer 获取全局容器实例
func GetContainer() *Container {
	once.Do(func() {
		globalContainer = NewContainer()
	})
	return globalContainer
}

// Register 在容器中注册一个服务实例
func (c *Container) Register(name string, service interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.services[name] = service
}

// Get 从容器中获取一个服务实例
func (c *Container) Get(name string) interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.services[name]
}

// Has 检查容器中是否存在指定名称的服务
func (c *Container) Has(name string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	_, exists := c.services[name]
	return exists
}

// GetNames 获取所有已注册服务的名称
func (c *Container) GetNames() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	names := make([]string, 0, len(c.services))
	for name := range c.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve 按名称取出服务并断言类型
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	svc := c.Get(name)
	if svc == nil {
		return zero, fmt.Errorf("服务未注册: %s", name)
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("服务 %s 类型不匹配: %T", name, svc)
	}
	return typed, nil
}
