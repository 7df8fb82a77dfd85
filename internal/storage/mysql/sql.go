package mysql

const upsertMarkerSQL = `
INSERT INTO device_markers
  (device_id, name, value, expires_at)
VALUES
  (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  value      = VALUES(value),
  expires_at = VALUES(expires_at)
`

// Expired rows are treated as absent; PurgeExpired removes them.
const getMarkerSQL = `
SELECT value
FROM device_markers
WHERE device_id = ? AND name = ? AND expires_at > ?
`

const deleteMarkerSQL = `DELETE FROM device_markers WHERE device_id = ? AND name = ?`

const purgeMarkersSQL = `DELETE FROM device_markers WHERE expires_at <= ?`
