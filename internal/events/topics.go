package events

// TopicOrderPlaced is emitted once the order API has accepted an order.
const TopicOrderPlaced = "order.placed"
