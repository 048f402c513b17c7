package rabbitmq

// QueueConfig очередь и ключ маршрутизации, которым она привязана к exchange
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// ReactivationQueues очереди, которые нужны воркеру доставки приглашений
func ReactivationQueues(queue, routingKey string) []QueueConfig {
	return []QueueConfig{
		{QueueName: queue, RoutingKey: routingKey},
	}
}
